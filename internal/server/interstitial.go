package server

import (
	"html/template"
	"net/http"
	"strings"

	"golang.org/x/text/language"

	"github.com/shibukawa/authrelay/internal/relay"
)

// interstitialText holds the localized strings of the hand-off page.
type interstitialText struct {
	Lang        string
	Title       string
	Success     string
	Returning   string
	Prompt      string
	Button      string
	CopyPrompt  string
	PasteAdvice string
}

var interstitialTexts = map[language.Base]interstitialText{
	mustBase(language.English): {
		Lang:        "en",
		Title:       "Authentication Complete",
		Success:     "Authentication Successful!",
		Returning:   "Returning to the app",
		Prompt:      "Click the button below to return to the app:",
		Button:      "Return to App",
		CopyPrompt:  "If automatic redirect doesn't work, copy this code:",
		PasteAdvice: "Then return to your app and paste it in the manual entry field.",
	},
	mustBase(language.Japanese): {
		Lang:        "ja",
		Title:       "認証完了",
		Success:     "認証に成功しました",
		Returning:   "アプリに戻ります",
		Prompt:      "下のボタンを押してアプリに戻ってください:",
		Button:      "アプリに戻る",
		CopyPrompt:  "自動で戻らない場合は、次のコードをコピーしてください:",
		PasteAdvice: "アプリに戻り、手動入力欄に貼り付けてください。",
	},
}

var interstitialMatcher = language.NewMatcher([]language.Tag{language.English, language.Japanese})

func mustBase(tag language.Tag) language.Base {
	base, _ := tag.Base()
	return base
}

// negotiateText picks the page language from Accept-Language, falling back to English
func negotiateText(acceptLanguage string) interstitialText {
	tag, _ := language.MatchStrings(interstitialMatcher, acceptLanguage)
	if text, ok := interstitialTexts[mustBase(tag)]; ok {
		return text
	}
	return interstitialTexts[mustBase(language.English)]
}

// interstitialData is the template input. Target is any so that app
// schemes can be passed as trusted template.URL while script-capable ones
// stay plain strings and get neutralized by html/template.
type interstitialData struct {
	Text         interstitialText
	Target       any
	AutoRedirect bool
	Code         string
	Success      bool
	CountdownMS  int
}

// scriptSchemes execute content in the page origin when navigated to.
var scriptSchemes = []string{"javascript", "vbscript", "data"}

// trustedTarget reports whether target may bypass URL sanitizing
func trustedTarget(target string) bool {
	scheme, _, found := strings.Cut(target, ":")
	if !found {
		return false
	}
	// Browsers drop ASCII whitespace and control characters inside schemes
	scheme = strings.Map(func(r rune) rune {
		if r <= ' ' {
			return -1
		}
		return r
	}, scheme)
	for _, s := range scriptSchemes {
		if strings.EqualFold(scheme, s) {
			return false
		}
	}
	return true
}

const interstitialHTML = `<!DOCTYPE html>
<html lang="{{.Text.Lang}}">
<head>
    <meta charset="utf-8">
    <title>{{.Text.Title}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>
        body { font-family: Arial, sans-serif; text-align: center; padding: 20px; }
        .button { background: #4285F4; color: white; padding: 12px 20px;
                  border: none; border-radius: 4px; font-size: 16px;
                  text-decoration: none; display: inline-block; margin-top: 20px; }
        .code-box {
            background: #eee;
            padding: 15px;
            border-radius: 8px;
            margin: 20px auto;
            max-width: 80%;
            font-family: monospace;
            font-size: 16px;
            word-break: break-all;
            text-align: center;
        }
    </style>
</head>
<body>
    <h2>{{if .Success}}{{.Text.Success}}{{else}}{{.Text.Returning}}{{end}}</h2>

    <p>{{.Text.Prompt}}</p>
    <a href="{{.Target}}" class="button" id="return-to-app">{{.Text.Button}}</a>
{{if .Code}}
    <hr style="margin: 30px 0;">

    <div>
        <p>{{.Text.CopyPrompt}}</p>
        <div class="code-box">{{.Code}}</div>
        <p>{{.Text.PasteAdvice}}</p>
    </div>
{{end}}
{{- if .AutoRedirect}}
    <script>
        setTimeout(function() {
            window.location.href = {{.Target}};
        }, {{.CountdownMS}});
    </script>
{{- end}}
</body>
</html>
`

func parseInterstitialTemplate() (*template.Template, error) {
	return template.New("interstitial").Parse(interstitialHTML)
}

// renderInterstitial writes the hand-off page for an interstitial decision
func (s *Server) renderInterstitial(w http.ResponseWriter, r *http.Request, d *relay.Decision, countdownMS int, hideCode bool) {
	data := interstitialData{
		Text:        negotiateText(r.Header.Get("Accept-Language")),
		Target:      d.Target,
		Success:     d.Outcome.Healthy(),
		CountdownMS: countdownMS,
	}
	if trustedTarget(d.Target) {
		data.Target = template.URL(d.Target)
		data.AutoRedirect = true
	}
	if !hideCode {
		data.Code = d.Code
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := s.interstitial.Execute(w, data); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to render interstitial page", "error", err, "request_id", RequestID(r.Context()))
	}
}
