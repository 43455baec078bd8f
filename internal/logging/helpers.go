package logging

// Per-category printf helpers. Call sites stay short:
//
//	logging.Tools("registered handler %s", name)
//	logging.AgentDebug("iteration %d action=%s", i, kind)

// Agent logs at info level for the orchestrator loop.
func Agent(format string, args ...any) { Get(CategoryAgent).Infof(format, args...) }

// AgentDebug logs at debug level for the orchestrator loop.
func AgentDebug(format string, args ...any) { Get(CategoryAgent).Debugf(format, args...) }

// AgentWarn logs at warn level for the orchestrator loop.
func AgentWarn(format string, args ...any) { Get(CategoryAgent).Warnf(format, args...) }

// AgentError logs at error level for the orchestrator loop.
func AgentError(format string, args ...any) { Get(CategoryAgent).Errorf(format, args...) }

// Tools logs at info level for registry and tool execution.
func Tools(format string, args ...any) { Get(CategoryTools).Infof(format, args...) }

// ToolsDebug logs at debug level for registry and tool execution.
func ToolsDebug(format string, args ...any) { Get(CategoryTools).Debugf(format, args...) }

// ToolsError logs at error level for registry and tool execution.
func ToolsError(format string, args ...any) { Get(CategoryTools).Errorf(format, args...) }

// Routing logs at info level for action routing.
func Routing(format string, args ...any) { Get(CategoryRouting).Infof(format, args...) }

// RoutingDebug logs at debug level for action routing.
func RoutingDebug(format string, args ...any) { Get(CategoryRouting).Debugf(format, args...) }

// Skills logs at info level for skill handling.
func Skills(format string, args ...any) { Get(CategorySkills).Infof(format, args...) }

// SkillsDebug logs at debug level for skill handling.
func SkillsDebug(format string, args ...any) { Get(CategorySkills).Debugf(format, args...) }

// Planner logs at info level for planner round trips.
func Planner(format string, args ...any) { Get(CategoryPlanner).Infof(format, args...) }

// PlannerDebug logs at debug level for planner round trips.
func PlannerDebug(format string, args ...any) { Get(CategoryPlanner).Debugf(format, args...) }

// Session logs at info level for session sequencing.
func Session(format string, args ...any) { Get(CategorySession).Infof(format, args...) }

// SessionDebug logs at debug level for session sequencing.
func SessionDebug(format string, args ...any) { Get(CategorySession).Debugf(format, args...) }

// Memory logs at debug level for memory store access.
func Memory(format string, args ...any) { Get(CategoryMemory).Debugf(format, args...) }

// MemoryError logs at error level for memory store access.
func MemoryError(format string, args ...any) { Get(CategoryMemory).Errorf(format, args...) }

// Audit logs at debug level for the audit sink.
func Audit(format string, args ...any) { Get(CategoryAudit).Debugf(format, args...) }

// Config logs at info level for configuration handling.
func Config(format string, args ...any) { Get(CategoryConfig).Infof(format, args...) }

// ConfigError logs at error level for configuration handling.
func ConfigError(format string, args ...any) { Get(CategoryConfig).Errorf(format, args...) }
