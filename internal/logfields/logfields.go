// Package logfields centralizes canonical slog field names to avoid drift across packages.
package logfields

import "log/slog"

const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyProgress   = "progress"
	KeyDevice     = "device"
	KeyVariant    = "variant"
	KeyTool       = "tool"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyUserAgent  = "user_agent"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr      { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Progress(p int) slog.Attr         { return slog.Int(KeyProgress, p) }
func Device(codename string) slog.Attr { return slog.String(KeyDevice, codename) }
func Variant(v string) slog.Attr       { return slog.String(KeyVariant, v) }
func Tool(name string) slog.Attr       { return slog.String(KeyTool, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func RemoteAddr(a string) slog.Attr    { return slog.String(KeyRemoteAddr, a) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
