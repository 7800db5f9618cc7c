package http

import (
	"html"
	nethttp "net/http"
	"strings"

	"go-fraud-visuals-ui/internal/viz"
)

func (s *Server) dashboardHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	viewer := s.viewerID(w, r)
	res := s.loadState(r, viewer)

	chart := chartFragments(res.State, viz.ChartLine)
	panels := panelFragments(res.State)

	var options strings.Builder
	for _, t := range viz.ChartTypes {
		options.WriteString(`<option value="` + string(t) + `">` + html.EscapeString(t.Title()) + `</option>`)
	}

	page := strings.NewReplacer(
		"{{THEME_VARS}}", s.theme.CSSVars(),
		"{{BACKGROUND}}", s.theme.Background,
		"{{SURFACE}}", s.theme.Surface,
		"{{TEXT}}", s.theme.Text,
		"{{CHART_OPTIONS}}", options.String(),
		"{{CHART}}", chart[0],
		"{{TITLE}}", chart[1],
		"{{LEGEND}}", chart[2],
		"{{INSIGHT}}", panels[0],
		"{{FIELDS}}", panels[1],
		"{{STATS}}", panels[2],
		"{{ORIGIN}}", html.EscapeString(res.Origin),
	).Replace(dashboardHTML)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write([]byte(page))
}

func faviconHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusNoContent)
}

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Fraud Visuals</title>
  <script type="module" src="https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"></script>
  <style>
    :root {
      {{THEME_VARS}}
      --bg: {{BACKGROUND}};
      --surface: {{SURFACE}};
      --text: {{TEXT}};
      --line-soft: rgba(120, 160, 220, 0.18);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      background: var(--bg);
      color: var(--text);
      font-family: "Helvetica Neue", Helvetica, Arial, sans-serif;
      font-size: 14px;
      line-height: 1.45;
    }

    header {
      padding: 18px 32px;
      border-bottom: 1px solid var(--line-soft);
      display: flex;
      align-items: center;
      justify-content: space-between;
      gap: 16px;
    }

    header h1 { margin: 0; font-size: 20px; font-weight: 400; }
    header h1 strong { font-weight: 700; }

    .origin {
      font-size: 12px;
      color: var(--viz-muted);
      text-transform: uppercase;
      letter-spacing: 0.6px;
    }

    main {
      display: grid;
      grid-template-columns: minmax(0, 2fr) minmax(0, 1fr);
      gap: 20px;
      padding: 24px 32px 40px;
    }

    .card {
      background: var(--surface);
      border: 1px solid var(--line-soft);
      border-radius: 16px;
      padding: 18px 20px;
    }

    .card-head {
      display: flex;
      align-items: center;
      justify-content: space-between;
      margin-bottom: 10px;
    }

    .viz-title { margin: 0; font-size: 15px; font-weight: 600; }

    select, .btn {
      background: transparent;
      color: var(--text);
      border: 1px solid var(--line-soft);
      border-radius: 8px;
      padding: 6px 10px;
      font-size: 13px;
    }

    .btn { text-decoration: none; cursor: pointer; }

    .viz-chart { width: 100%; height: auto; display: block; }

    .viz-legend { display: flex; gap: 14px; font-size: 12px; margin-top: 8px; }
    .viz-legend span::before { content: "\25CF "; }

    .viz-stats {
      display: flex;
      align-items: flex-end;
      gap: 12px;
      height: 140px;
      margin-top: 14px;
    }

    .viz-bar {
      flex: 1;
      height: 100%;
      display: flex;
      flex-direction: column;
      justify-content: flex-end;
      align-items: center;
      gap: 4px;
    }

    .viz-bar-fill { width: 100%; border-radius: 6px 6px 2px 2px; display: block; }
    .viz-bar-label { font-size: 11px; color: var(--viz-muted); }

    .viz-fields { font-size: 12px; color: var(--viz-muted); margin: 10px 0 0; }
    .viz-insight { font-size: 13px; }

    .mini-status { font-size: 12px; color: var(--viz-muted); margin-top: 8px; min-height: 16px; }
    .mini-status.bad { color: var(--viz-alert); }

    .history-summary { font-size: 13px; margin: 6px 0; }
    .history-meta { font-size: 12px; color: var(--viz-muted); }

    @media (max-width: 900px) {
      main { grid-template-columns: 1fr; }
    }
  </style>
</head>
<body data-signals="{vizType: 'line'}" data-init="@get('/visuals/updates')">
  <header>
    <h1><strong>Market Fraud Detection</strong> &middot; Visuals</h1>
    <span class="origin">state: {{ORIGIN}}</span>
  </header>
  <main>
    <section class="card">
      <div class="card-head">
        {{TITLE}}
        <div>
          <select id="viz-type" data-bind:viz-type data-on:change="@post('/visuals/chart')">{{CHART_OPTIONS}}</select>
          <a class="btn" href="/api/v1/snapshot.png" download="fraud-visuals.png">Download snapshot</a>
        </div>
      </div>
      {{CHART}}
      {{LEGEND}}
      {{FIELDS}}
    </section>

    <aside>
      <section class="card">
        <div class="card-head"><h3 class="viz-title">Insight</h3></div>
        {{INSIGHT}}
        {{STATS}}
      </section>

      <section class="card" style="margin-top: 20px;">
        <div class="card-head"><h3 class="viz-title">Latest upload</h3></div>
        <p id="history-summary" class="history-summary">Summary: --</p>
        <p id="history-meta" class="history-meta">Updated: --</p>
      </section>

      <section class="card" style="margin-top: 20px;">
        <div class="card-head"><h3 class="viz-title">Check a file</h3></div>
        <input id="file-input" type="file" accept=".csv,.pdf" />
        <div id="mini-status" class="mini-status"></div>
        <div id="sniff-fields" class="mini-status"></div>
      </section>
    </aside>
  </main>

  <script>
    (function () {
      const summary = document.getElementById("history-summary");
      const meta = document.getElementById("history-meta");
      fetch("/api/v1/history/latest", { credentials: "same-origin" })
        .then((res) => (res.ok ? res.json() : null))
        .then((payload) => {
          if (!payload || !payload.data) return;
          const card = payload.data;
          summary.textContent = card.summary || "Summary: --";
          meta.textContent = [card.filename, card.error_rate ? "Error rate " + card.error_rate : "", card.updated]
            .filter(Boolean)
            .join(" • ");
        })
        .catch(() => {});

      const input = document.getElementById("file-input");
      const status = document.getElementById("mini-status");
      const fields = document.getElementById("sniff-fields");
      input.addEventListener("change", () => {
        const file = input.files && input.files[0];
        status.textContent = "";
        fields.textContent = "";
        if (!file) return;
        const form = new FormData();
        form.append("file", file);
        fetch("/api/v1/upload/describe", { method: "POST", body: form, credentials: "same-origin" })
          .then((res) => res.json())
          .then((payload) => {
            const data = payload.data || {};
            const info = data.file || {};
            status.textContent = info.message || payload.error || "";
            status.classList.toggle("bad", info.accepted === false);
            fields.textContent = data.fields_caption || "";
          })
          .catch(() => {
            status.textContent = "Could not read file";
            status.classList.add("bad");
          });
      });
    })();
  </script>
</body>
</html>
`
