package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockDefaultModel = "anthropic.claude-sonnet-4-20250514-v1:0"

// BedrockProvider runs generations against AWS-managed foundation models via
// the bedrockruntime InvokeModel API. Request bodies differ per model family
// (claude, llama, titan); responses are normalized back into the shared shape.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	region       string
}

// BedrockConfig holds credentials for the aws_managed backend. Leaving the
// key pair empty falls back to the default AWS credential chain.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// NewBedrockProvider creates an aws_managed backend.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = bedrockDefaultModel
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, WrapError(ProviderAWS, KindAuth, fmt.Errorf("load aws config: %w", err))
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		region:       cfg.Region,
	}, nil
}

func (p *BedrockProvider) Name() string         { return ProviderAWS }
func (p *BedrockProvider) DefaultModel() string { return p.defaultModel }

// Models lists known Bedrock model ids by family. Actual availability
// depends on the account's model access grants.
func (p *BedrockProvider) Models() map[string][]string {
	return map[string][]string{
		"claude": {
			"anthropic.claude-sonnet-4-20250514-v1:0",
			"anthropic.claude-3-5-sonnet-20241022-v2:0",
			"anthropic.claude-3-5-haiku-20241022-v1:0",
		},
		"llama": {
			"meta.llama3-3-70b-instruct-v1:0",
			"meta.llama3-1-8b-instruct-v1:0",
		},
		"titan": {
			"amazon.titan-text-express-v1",
			"amazon.titan-text-lite-v1",
		},
	}
}

func (p *BedrockProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body, err := buildBedrockBody(model, req, maxTokens)
	if err != nil {
		return nil, err
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapError(p.Name(), KindOf(ctx.Err()), ctx.Err())
		}
		return nil, WrapError(p.Name(), KindAPI, fmt.Errorf("invoke %s: %w", model, err))
	}

	return parseBedrockResponse(model, out.Body)
}

// buildBedrockBody marshals the per-family request payload. Claude-family
// models use the anthropic messages format, llama a bare prompt, titan its
// textGenerationConfig envelope.
func buildBedrockBody(model string, req GenerateRequest, maxTokens int) ([]byte, error) {
	var payload map[string]any

	switch bedrockFamily(model) {
	case "claude":
		payload = map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       defaultTemperature,
			"messages": []map[string]any{
				{"role": "user", "content": req.Prompt},
			},
		}
		if len(req.Tools) > 0 {
			tools := make([]map[string]any, 0, len(req.Tools))
			for _, t := range req.Tools {
				tools = append(tools, map[string]any{
					"name":         t.Name,
					"description":  t.Description,
					"input_schema": t.Parameters,
				})
			}
			payload["tools"] = tools
		}

	case "llama":
		payload = map[string]any{
			"prompt":      req.Prompt,
			"max_gen_len": maxTokens,
			"temperature": defaultTemperature,
			"top_p":       defaultTopP,
		}

	case "titan":
		payload = map[string]any{
			"inputText": req.Prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": maxTokens,
				"temperature":   defaultTemperature,
				"topP":          defaultTopP,
			},
		}

	default:
		return nil, NewError(ProviderAWS, KindUnsupported, fmt.Sprintf("no request format for model %q", model))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(ProviderAWS, KindInvalidArguments, fmt.Errorf("marshal request: %w", err))
	}
	return data, nil
}

func parseBedrockResponse(model string, body []byte) (*GenerateResponse, error) {
	result := &GenerateResponse{}

	switch bedrockFamily(model) {
	case "claude":
		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, WrapError(ProviderAWS, KindParse, fmt.Errorf("decode claude response: %w", err))
		}
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				result.Content += block.Text
			case "tool_use":
				args := make(map[string]any)
				_ = json.Unmarshal(block.Input, &args)
				result.ToolCalls = append(result.ToolCalls, ToolCall{
					Name:      block.Name,
					Arguments: args,
				})
			}
		}
		result.Usage = finishUsage(Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}, result.Content)

	case "llama":
		var resp struct {
			Generation           string `json:"generation"`
			PromptTokenCount     int    `json:"prompt_token_count"`
			GenerationTokenCount int    `json:"generation_token_count"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, WrapError(ProviderAWS, KindParse, fmt.Errorf("decode llama response: %w", err))
		}
		result.Content = resp.Generation
		result.Usage = finishUsage(Usage{
			InputTokens:  resp.PromptTokenCount,
			OutputTokens: resp.GenerationTokenCount,
			TotalTokens:  resp.PromptTokenCount + resp.GenerationTokenCount,
		}, result.Content)

	case "titan":
		var resp struct {
			InputTextTokenCount int `json:"inputTextTokenCount"`
			Results             []struct {
				OutputText string `json:"outputText"`
				TokenCount int    `json:"tokenCount"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, WrapError(ProviderAWS, KindParse, fmt.Errorf("decode titan response: %w", err))
		}
		var outTokens int
		for _, r := range resp.Results {
			result.Content += r.OutputText
			outTokens += r.TokenCount
		}
		result.Usage = finishUsage(Usage{
			InputTokens:  resp.InputTextTokenCount,
			OutputTokens: outTokens,
			TotalTokens:  resp.InputTextTokenCount + outTokens,
		}, result.Content)

	default:
		return nil, NewError(ProviderAWS, KindUnsupported, fmt.Sprintf("no response format for model %q", model))
	}

	return result, nil
}

func bedrockFamily(model string) string {
	switch {
	case strings.Contains(model, "claude"):
		return "claude"
	case strings.Contains(model, "llama"):
		return "llama"
	case strings.Contains(model, "titan"):
		return "titan"
	default:
		return ""
	}
}
