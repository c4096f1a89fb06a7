package log

import "time"

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUser       = "user"
	FieldEntryID    = "entry_id"
	FieldEntryName  = "entry_name"
	FieldPrice      = "price"
	FieldEntryDate  = "entry_date"
	FieldWorkedTime = "worked_time"
	FieldSelection  = "selection"
	FieldBackend    = "backend"
	FieldCount      = "count"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentEntries   = "entries"
	ComponentStore     = "store"
	ComponentAuth      = "auth"
	ComponentEvents    = "events"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpList      = "list"
	OpDelete    = "delete"
	OpSetTime   = "set_time"
	OpDashboard = "dashboard"
	OpAuth      = "authenticate"
	OpMirror    = "mirror"
	OpReconcile = "reconcile"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUser adds the authenticated email.
func (f LogFields) WithUser(email string) LogFields {
	if email != "" {
		f[FieldUser] = email
	}
	return f
}

// WithEntry adds entry fields
func (f LogFields) WithEntry(id, name, price, date, workedTime string) LogFields {
	f[FieldEntryID] = id
	f[FieldEntryName] = name
	f[FieldPrice] = price
	f[FieldEntryDate] = date
	if workedTime != "" {
		f[FieldWorkedTime] = workedTime
	}
	return f
}

// WithHTTP adds request and response fields
func (f LogFields) WithHTTP(method, path, query string, status int, d time.Duration) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldStatusCode] = status
	f[FieldDuration] = d.Milliseconds()
	f[FieldSuccess] = status < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
