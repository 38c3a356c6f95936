package handlers

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/scamvax-labs/scamvax_api/shared"
)

// PageHandler serves the public challenge page. It is the only HTML surface
// of the service; everything else is JSON.
type PageHandler struct {
	shareSvc ShareServiceInterface
}

func NewPageHandler(shareSvc ShareServiceInterface) *PageHandler {
	return &PageHandler{
		shareSvc: shareSvc,
	}
}

type pageStrings struct {
	Title       string
	EduBadge    string
	Disclaimer  string
	ChoiceReal  string
	ChoiceAI    string
	SubmitText  string
	ResultTitle string
	ResultBody  string
	CTAHint     string
	CTAText     string
	Footer      string
}

var pageI18n = map[string]pageStrings{
	"zh": {
		Title:       "家庭防骗演习",
		EduBadge:    "📢 防骗教育",
		Disclaimer:  "⚠️ 本页面包含 AI 合成语音，仅用于家庭防骗教育演习。",
		ChoiceReal:  "✅ 真实录音",
		ChoiceAI:    "🤖 AI 生成",
		SubmitText:  "提交判断",
		ResultTitle: "🎯 这是 AI 合成语音！",
		ResultBody:  "仅凭听觉，你无法可靠地验证对方身份。AI 可以完美模拟你亲人的声音。",
		CTAHint:     "💡 立即建立家庭安全暗号：任何要求转账或验证码的电话，必须用暗号验证。",
		CTAText:     "制作我的挑战，提醒亲友防骗 →",
		Footer:      "该挑战将在 72 小时或 50 次访问后自动删除",
	},
	"en": {
		Title:       "Family Anti-Scam Exercise",
		EduBadge:    "📢 Scam Awareness",
		Disclaimer:  "⚠️ This page contains AI-synthesized voice, for family anti-scam education only.",
		ChoiceReal:  "✅ Real Voice",
		ChoiceAI:    "🤖 AI Generated",
		SubmitText:  "Submit Answer",
		ResultTitle: "🎯 This was AI-generated!",
		ResultBody:  "You cannot reliably verify someone's identity by voice alone. AI can perfectly clone your family member's voice.",
		CTAHint:     "💡 Set a family safe word now: any call requesting money or codes must be verified with the safe word.",
		CTAText:     "Create My Challenge & Protect My Family →",
		Footer:      "This challenge will be auto-deleted after 72 hours or 50 visits",
	},
}

type pageData struct {
	Lang    string
	ShareID string
	T       pageStrings
}

var challengePage = template.Must(template.New("challenge").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
  <meta charset="UTF-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1.0"/>
  <title>{{.T.Title}}</title>
  <style>
    * { box-sizing: border-box; margin: 0; padding: 0; }
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
           background: #0f172a; color: #f1f5f9; min-height: 100vh;
           display: flex; flex-direction: column; align-items: center;
           justify-content: center; padding: 24px; }
    .card { background: #1e293b; border-radius: 16px; padding: 32px;
            max-width: 480px; width: 100%; box-shadow: 0 25px 50px rgba(0,0,0,.5); }
    .badge { background: #ef4444; color: white; font-size: 12px; font-weight: 700;
             padding: 4px 12px; border-radius: 99px; display: inline-block; margin-bottom: 16px; }
    h1 { font-size: 22px; font-weight: 700; margin-bottom: 8px; }
    .disclaimer { background: #fef3c7; color: #92400e; border-radius: 8px;
                  padding: 12px 16px; font-size: 14px; margin-bottom: 24px; }
    .audio-block { background: #0f172a; border-radius: 12px; padding: 24px;
                   text-align: center; margin-bottom: 24px; }
    audio { width: 100%; margin-bottom: 16px; }
    .choices { display: flex; gap: 12px; margin-bottom: 16px; }
    .choice-btn { flex: 1; padding: 12px; border: 2px solid #334155;
                  background: transparent; color: #f1f5f9; border-radius: 8px;
                  cursor: pointer; font-size: 15px; transition: all .2s; }
    .choice-btn.selected { border-color: #6366f1; background: #312e81; }
    .submit-btn { width: 100%; padding: 14px; background: #6366f1; color: white;
                  border: none; border-radius: 8px; font-size: 16px; font-weight: 600;
                  cursor: pointer; transition: background .2s; }
    .submit-btn:disabled { background: #334155; cursor: not-allowed; }
    .submit-btn:hover:not(:disabled) { background: #4f46e5; }
    .result { display: none; }
    .result h2 { font-size: 20px; margin-bottom: 12px; color: #f87171; }
    .result p { color: #94a3b8; line-height: 1.6; margin-bottom: 16px; }
    .cta-btn { display: block; width: 100%; padding: 14px; background: #22c55e;
               color: white; text-align: center; border-radius: 8px; font-weight: 600;
               text-decoration: none; margin-bottom: 12px; }
    .footer { margin-top: 24px; font-size: 12px; color: #475569; text-align: center; }
    .lang-switch { position: absolute; top: 16px; right: 16px; }
    .lang-btn { background: #1e293b; color: #94a3b8; border: 1px solid #334155;
                padding: 6px 12px; border-radius: 6px; cursor: pointer; font-size: 13px; }
  </style>
</head>
<body>
  <button class="lang-btn lang-switch" onclick="toggleLang()">中/EN</button>
  <div class="card">
    <span class="badge">{{.T.EduBadge}}</span>
    <h1>{{.T.Title}}</h1>

    <div class="disclaimer">{{.T.Disclaimer}}</div>

    <div id="challenge" class="audio-block">
      <audio id="audio-player" controls>
        <source src="/api/v1/share/{{.ShareID}}/audio" type="audio/wav"/>
      </audio>
      <div class="choices">
        <button class="choice-btn" onclick="select('real')" id="btn-real">{{.T.ChoiceReal}}</button>
        <button class="choice-btn" onclick="select('ai')" id="btn-ai">{{.T.ChoiceAI}}</button>
      </div>
      <button class="submit-btn" id="submit-btn" disabled onclick="submit()">{{.T.SubmitText}}</button>
    </div>

    <div id="result" class="result">
      <h2>{{.T.ResultTitle}}</h2>
      <p>{{.T.ResultBody}}</p>
      <p><strong>{{.T.CTAHint}}</strong></p>
      <br/>
      <a class="cta-btn" id="download-btn" href="#">{{.T.CTAText}}</a>
    </div>

    <div class="footer">{{.T.Footer}}</div>
  </div>

  <script>
    var selected = null;
    var lang = {{.Lang}};

    var storeLinks = {
      ios: 'https://apps.apple.com/app/scamvax',
      android: 'https://play.google.com/store/apps/details?id=com.scamvax'
    };

    function select(val) {
      selected = val;
      document.getElementById('btn-real').classList.toggle('selected', val === 'real');
      document.getElementById('btn-ai').classList.toggle('selected', val === 'ai');
      document.getElementById('submit-btn').disabled = false;
    }

    function submit() {
      document.getElementById('challenge').style.display = 'none';
      document.getElementById('result').style.display = 'block';

      var ua = navigator.userAgent;
      var dlBtn = document.getElementById('download-btn');
      if (/iPhone|iPad|iPod/.test(ua)) {
        dlBtn.href = storeLinks.ios;
      } else if (/Android/.test(ua)) {
        dlBtn.href = storeLinks.android;
      } else {
        dlBtn.href = storeLinks.ios;
        dlBtn.innerHTML += ' / Android';
      }
    }

    function toggleLang() {
      var newLang = lang === 'zh' ? 'en' : 'zh';
      localStorage.setItem('sv_lang', newLang);
      var url = new URL(location.href);
      url.searchParams.set('lang', newLang);
      location.href = url.toString();
    }
  </script>
</body>
</html>`))

const expiredPage = `<!DOCTYPE html>
<html><head><meta charset="UTF-8"/>
<title>Challenge Expired</title>
<style>body{font-family:sans-serif;display:flex;align-items:center;justify-content:center;
min-height:100vh;background:#0f172a;color:#f1f5f9;text-align:center;padding:24px;}
.card{background:#1e293b;border-radius:16px;padding:40px;max-width:400px;}
h1{margin-bottom:12px;color:#f87171;}p{color:#94a3b8;}</style>
</head><body><div class="card">
<h1>⏰ 挑战已过期 / Challenge Expired</h1>
<p>该链接已超过 72 小时或被访问 50 次，已自动删除。<br/>
This link expired after 72h or 50 visits and was deleted.</p>
</div></body></html>`

// ChallengePage is the shared-link entry point. Rendering the page counts
// one access; a dead or just-expired share gets the 410 page instead.
// Language resolution: ?lang= beats Accept-Language, default zh.
func (h *PageHandler) ChallengePage(c *fiber.Ctx) error {
	shareID := c.Params("shareId")

	share, err := h.shareSvc.Access(c.Context(), shareID)
	if err != nil {
		if appErr, ok := shared.GetAppError(err); ok && appErr.StatusCode == fiber.StatusNotFound {
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
			return c.Status(fiber.StatusGone).SendString(expiredPage)
		}
		return err
	}

	lang := c.Query("lang")
	if lang != "zh" && lang != "en" {
		if strings.Contains(c.Get(fiber.HeaderAcceptLanguage), "zh") {
			lang = "zh"
		} else {
			lang = "en"
		}
	}

	var buf bytes.Buffer
	if err := challengePage.Execute(&buf, pageData{
		Lang:    lang,
		ShareID: share.ShareID,
		T:       pageI18n[lang],
	}); err != nil {
		log.WithFields(log.Fields{
			"share_id": shareID,
			"error":    err,
		}).Error("Challenge page render failed")
		return shared.NewInternalError(err, "Failed to render challenge page")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}
