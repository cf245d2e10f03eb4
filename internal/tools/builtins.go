package tools

// RegisterBuiltins registers the standard tool set against a workspace.
func RegisterBuiltins(r *Registry, workspace string, restrict bool) error {
	builtins := []Tool{
		NewReadFileTool(workspace, restrict),
		NewWriteFileTool(workspace, restrict),
		NewListDirectoryTool(workspace, restrict),
		NewCreateDirectoryTool(workspace, restrict),
		NewExecuteCommandTool(workspace, restrict),
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
