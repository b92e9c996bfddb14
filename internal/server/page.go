package server

import (
	"html/template"
	"log"
	"net/http"
	"strconv"

	"axalportal/internal/portal"
)

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
{{if .Refresh}}<meta http-equiv="refresh" content="{{.Refresh}}">{{end}}
<title>Axal Reward Portal</title>
<style>
  body { font-family: system-ui, sans-serif; max-width: 480px; margin: 40px auto; padding: 0 16px; }
  .input-group { margin-bottom: 16px; }
  .input-group input { width: 100%; }
  .error-text { color: #dc2626; }
  .success-text { color: #16a34a; }
</style>
</head>
<body>
<div class="app-container">
  <h1 class="title">Axal Reward Portal</h1>
  <form method="post" action="/claim">
    <div class="input-group">
      <label for="apy">{{.View.APYLabel}}</label>
      <input id="apy" name="apy" type="range" min="{{.MinAPY}}" max="{{.MaxAPY}}" value="{{.View.APY}}">
    </div>
    <div class="input-group">
      <label for="tvl">{{.View.TVLLabel}}</label>
      <input id="tvl" name="tvl" type="range" min="{{.MinTVL}}" max="{{.MaxTVL}}" step="{{.StepTVL}}" value="{{.View.TVL}}">
    </div>
    <p class="balance">Wallet Balance: <span>{{.View.Balance}} {{.Symbol}}</span></p>
    <button class="claim-btn" type="submit"{{if or .View.Busy .Signed}} disabled{{end}}>{{.View.ButtonLabel}}</button>
    <button type="submit" formaction="/thresholds"{{if or .View.Busy .Signed}} disabled{{end}}>Save thresholds</button>
  </form>
  {{if .Signed}}<p class="note">Claims are accepted as signed API requests only.</p>{{end}}
  {{if .View.Status}}
  <div class="response-container">
    <p class="{{if .View.StatusIsError}}error-text{{else}}success-text{{end}}">{{.View.Status}}</p>
    {{if .View.ExplorerURL}}
    <p><a href="{{.View.ExplorerURL}}" target="_blank" rel="noopener noreferrer" class="etherscan-link">View on Etherscan</a></p>
    {{end}}
  </div>
  {{end}}
</div>
</body>
</html>
`

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

type pageData struct {
	View    portal.View
	Symbol  string
	Refresh int
	// Signed disables the form when requests must carry an HMAC signature.
	Signed  bool
	MinAPY  int
	MaxAPY  int
	MinTVL  int
	MaxTVL  int
	StepTVL int
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	view := s.session.View()
	data := pageData{
		View:    view,
		Symbol:  s.cfg.Portal.TokenSymbol,
		Signed:  s.cfg.Service.APISecret != "",
		MinAPY:  portal.MinAPY,
		MaxAPY:  portal.MaxAPY,
		MinTVL:  portal.MinTVL,
		MaxTVL:  portal.MaxTVL,
		StepTVL: portal.StepTVL,
	}
	// Reload once the reconciliation read is due so the page shows chain state.
	if view.Phase == portal.PhaseOptimistic || view.Busy {
		data.Refresh = int(s.session.ReconcileDelay().Seconds()) + 1
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		http.Error(w, "render page: "+err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleThresholdsForm(w http.ResponseWriter, r *http.Request) {
	if err := s.applyFormThresholds(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleClaimForm saves the submitted sliders and runs the claim. The outcome
// is shown on the page it redirects to.
func (s *Server) handleClaimForm(w http.ResponseWriter, r *http.Request) {
	if err := s.applyFormThresholds(r); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.session.Claim(detached(r)); err != nil {
		log.Printf("form claim: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) applyFormThresholds(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	current := s.session.State()
	apy, err := formUint(r, "apy", current.APY)
	if err != nil {
		return err
	}
	tvl, err := formUint(r, "tvl", current.TVL)
	if err != nil {
		return err
	}
	return s.session.SetThresholds(apy, tvl)
}

func formUint(r *http.Request, key string, fallback uint64) (uint64, error) {
	raw := r.PostFormValue(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, &portal.ValidationError{Message: "invalid " + key}
	}
	return v, nil
}
