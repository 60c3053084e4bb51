package errors

// Convenience constructors for common error patterns

// Input and lookup errors

func ValidationError(message string) *BuilderError {
	return New(CategoryValidation, SeverityWarning, message)
}

func ValidationFailed(field, reason string) *BuilderError {
	return New(CategoryValidation, SeverityWarning, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

func ConflictError(message string) *BuilderError {
	return New(CategoryConflict, SeverityWarning, message)
}

func NotFoundError(resource string) *BuilderError {
	return New(CategoryNotFound, SeverityWarning, resource+" not found")
}

// External tool errors

func ToolError(tool string, cause error) *BuilderError {
	return Wrap(cause, CategoryTool, SeverityFatal, "external tool failed").
		WithContext("tool", tool)
}

func ToolLaunchError(tool string, cause error) *BuilderError {
	return Wrap(cause, CategoryTool, SeverityFatal, "external tool could not be launched").
		WithContext("tool", tool)
}

// Build pipeline errors

func BuildFailed(stage string, cause error) *BuilderError {
	return Wrap(cause, CategoryBuild, SeverityFatal, "build failed").
		WithContext("stage", stage)
}

func SourceFetchError(kind string, cause error) *BuilderError {
	return Wrap(cause, CategoryGit, SeverityFatal, "source fetch failed").
		WithContext("source", kind)
}

// Storage errors

func StorageError(operation string, cause error) *BuilderError {
	return Wrap(cause, CategoryStorage, SeverityFatal, "store operation failed").
		WithContext("operation", operation)
}

// Config errors

func ConfigNotFound(path string) *BuilderError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("path", path)
}

func ConfigRequired(field string) *BuilderError {
	return New(CategoryConfig, SeverityFatal, "required configuration missing").
		WithContext("field", field)
}

// Infrastructure errors

func DaemonError(message string) *BuilderError {
	return New(CategoryDaemon, SeverityError, message)
}

func InternalError(message string, cause error) *BuilderError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}

func NetworkError(url string, cause error) *BuilderError {
	return Wrap(cause, CategoryNetwork, SeverityWarning, "upstream request failed").
		WithContext("url", url)
}
