package server

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shibukawa/authrelay/internal/relay"
)

// Logger provides colorful, pretty console logging for the relay
type Logger struct {
	out io.Writer

	success *color.Color
	info    *color.Color
	warning *color.Color
	error   *color.Color
	debug   *color.Color

	highlight *color.Color
	url       *color.Color
	key       *color.Color
	value     *color.Color
}

// NewLogger creates a new colorful logger writing to the terminal
func NewLogger() *Logger {
	return NewLoggerTo(color.Output)
}

// NewLoggerTo creates a colorful logger writing to out
func NewLoggerTo(out io.Writer) *Logger {
	return &Logger{
		out:       out,
		success:   color.New(color.FgGreen, color.Bold),
		info:      color.New(color.FgCyan, color.Bold),
		warning:   color.New(color.FgYellow, color.Bold),
		error:     color.New(color.FgRed, color.Bold),
		debug:     color.New(color.FgMagenta),
		highlight: color.New(color.FgWhite, color.Bold),
		url:       color.New(color.FgBlue, color.Underline),
		key:       color.New(color.FgYellow),
		value:     color.New(color.FgGreen),
	}
}

// ServerStarting logs server startup with the relay endpoints
func (l *Logger) ServerStarting(addr, baseURL, redirectPath string, opts relay.Options, https bool) {
	fmt.Fprintln(l.out)
	l.printBanner()
	fmt.Fprintln(l.out)

	if https {
		l.success.Fprint(l.out, "🔒 HTTPS Relay Starting")
	} else {
		l.info.Fprint(l.out, "🚀 HTTP Relay Starting")
	}
	fmt.Fprintln(l.out)

	l.printKeyValue("📍 Address", addr)
	l.printKeyValue("🌐 Base URL", baseURL)
	l.printKeyValue("📱 Scheme", opts.DefaultScheme)
	l.printKeyValue("🧪 Dev Tunnel", opts.DevTunnelURL)
	l.printKeyValue("🪧 Response", string(opts.Presentation))
	l.printKeyValue("⏰ Started", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Fprintln(l.out)
	l.info.Fprintln(l.out, "📋 Available Endpoints:")
	l.printEndpoint("Callback", baseURL+redirectPath)
	l.printEndpoint("Test Mode", baseURL+redirectPath+"?test_mode=true")
	l.printEndpoint("Docs", baseURL+"/docs")
	l.printEndpoint("Health Check", baseURL+"/health")

	fmt.Fprintln(l.out)
	l.success.Fprintln(l.out, "✅ Relay ready to accept callbacks!")
	l.printSeparator()
}

// ConfigReloaded logs successful configuration reload
func (l *Logger) ConfigReloaded(configFile string, changes []string) {
	fmt.Fprintln(l.out)
	l.info.Fprint(l.out, "🔄 Configuration Reloaded")
	fmt.Fprintln(l.out)

	l.printKeyValue("📄 File", configFile)
	l.printKeyValue("⏰ Time", time.Now().Format("15:04:05"))

	if len(changes) > 0 {
		fmt.Fprintln(l.out)
		l.info.Fprintln(l.out, "📝 Changes Applied:")
		for _, change := range changes {
			fmt.Fprint(l.out, "   • ")
			l.value.Fprintln(l.out, change)
		}
	}

	fmt.Fprintln(l.out)
	l.success.Fprintln(l.out, "✅ Configuration updated successfully!")
	l.printSeparator()
}

// ConfigReloadFailed logs configuration reload failure
func (l *Logger) ConfigReloadFailed(configFile string, err error) {
	fmt.Fprintln(l.out)
	l.error.Fprint(l.out, "❌ Configuration Reload Failed")
	fmt.Fprintln(l.out)

	l.printKeyValue("📄 File", configFile)
	l.printKeyValue("⏰ Time", time.Now().Format("15:04:05"))
	l.printKeyValue("💥 Error", err.Error())

	fmt.Fprintln(l.out)
	l.warning.Fprintln(l.out, "⚠️  Using previous configuration")
	l.printSeparator()
}

// RequestLog logs HTTP requests with colors
func (l *Logger) RequestLog(method, path string, statusCode int, duration time.Duration) {
	l.printRequest(method, path, statusCode, duration)
	fmt.Fprintln(l.out)
}

// RequestLogWithCORS logs HTTP requests with CORS debugging information
func (l *Logger) RequestLogWithCORS(method, path string, statusCode int, duration time.Duration, origin, corsOrigin string) {
	l.printRequest(method, path, statusCode, duration)

	if origin != "" {
		l.key.Fprint(l.out, " Origin: ")
		l.value.Fprint(l.out, origin)
		if corsOrigin != "" {
			l.key.Fprint(l.out, " → CORS: ")
			if corsOrigin == origin || corsOrigin == "*" {
				l.success.Fprint(l.out, corsOrigin)
			} else {
				l.warning.Fprint(l.out, corsOrigin)
			}
		} else {
			l.error.Fprint(l.out, " → No CORS")
		}
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) printRequest(method, path string, statusCode int, duration time.Duration) {
	var statusColor *color.Color
	var statusEmoji string

	switch {
	case statusCode >= 200 && statusCode < 300:
		statusColor = l.success
		statusEmoji = "✅"
	case statusCode >= 300 && statusCode < 400:
		statusColor = l.info
		statusEmoji = "🔄"
	case statusCode >= 400 && statusCode < 500:
		statusColor = l.warning
		statusEmoji = "⚠️"
	default:
		statusColor = l.error
		statusEmoji = "❌"
	}

	l.debug.Fprintf(l.out, "[%s] ", time.Now().Format("15:04:05"))
	statusColor.Fprintf(l.out, "%s %d ", statusEmoji, statusCode)
	l.highlight.Fprintf(l.out, "%-6s ", method)
	l.url.Fprintf(l.out, "%-30s ", path)
	l.debug.Fprintf(l.out, "(%v)", duration)
}

// CallbackRelayed logs a resolved callback. Only the masked destination is printed.
func (l *Logger) CallbackRelayed(d *relay.Decision) {
	fmt.Fprintln(l.out)
	if d.Outcome.Healthy() {
		l.success.Fprint(l.out, "📲 Callback Relayed")
	} else {
		l.warning.Fprint(l.out, "📭 Callback Relayed Without Credentials")
	}
	fmt.Fprintln(l.out)

	l.printKeyValue("🎯 Target", d.SafeTarget)
	l.printKeyValue("🪧 Response", string(d.Kind))
	l.printKeyValue("🔎 Outcome", string(d.Outcome))
	if d.Redacted.Len() > 0 {
		l.printKeyValue("🧾 Params", strings.Join(d.Redacted.Keys(), ", "))
	}
	l.printSeparator()
}

// Error logs errors with formatting
func (l *Logger) Error(message string, err error) {
	fmt.Fprintln(l.out)
	l.error.Fprint(l.out, "❌ Error: ")
	l.error.Fprintln(l.out, message)

	if err != nil {
		l.printKeyValue("💥 Details", err.Error())
	}
	l.printKeyValue("⏰ Time", time.Now().Format("15:04:05"))

	l.printSeparator()
}

// Warning logs warnings with formatting
func (l *Logger) Warning(message string) {
	fmt.Fprintln(l.out)
	l.warning.Fprint(l.out, "⚠️  Warning: ")
	l.warning.Fprintln(l.out, message)
	l.printKeyValue("⏰ Time", time.Now().Format("15:04:05"))
	l.printSeparator()
}

// Info logs info messages with formatting
func (l *Logger) Info(message string) {
	fmt.Fprintln(l.out)
	l.info.Fprint(l.out, "ℹ️  Info: ")
	l.info.Fprintln(l.out, message)
	l.printKeyValue("⏰ Time", time.Now().Format("15:04:05"))
	l.printSeparator()
}

func (l *Logger) printBanner() {
	banner := `
    _         _   _     ____      _
   / \  _   _| |_| |__ |  _ \ ___| | __ _ _   _
  / _ \| | | | __| '_ \| |_) / _ \ |/ _' | | | |
 / ___ \ |_| | |_| | | |  _ <  __/ | (_| | |_| |
/_/   \_\__,_|\__|_| |_|_| \_\___|_|\__,_|\__, |
                                          |___/
OAuth Callback Relay for Mobile Apps`

	l.highlight.Fprintln(l.out, banner)
}

func (l *Logger) printKeyValue(key, value string) {
	l.key.Fprintf(l.out, "   %-14s ", key+":")
	l.value.Fprintln(l.out, value)
}

func (l *Logger) printEndpoint(name, url string) {
	l.key.Fprintf(l.out, "   %-15s ", name+":")
	l.url.Fprintln(l.out, url)
}

func (l *Logger) printSeparator() {
	l.debug.Fprintln(l.out, strings.Repeat("─", 80))
}
