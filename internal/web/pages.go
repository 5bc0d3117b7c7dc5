package web

import (
	"html/template"
	"net/http"

	"github.com/flowdeck/flowdeck/pkg/auth"
)

var loginTmpl = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>flowdeck — sign in</title></head>
<body>
  <h1>flowdeck</h1>
  <p>Sign in with your organization account, then return here.</p>
  <form id="login">
    <input name="token" placeholder="access token" autocomplete="off">
    <button type="submit">Sign in</button>
  </form>
  <p id="msg"></p>
  <script>
  document.getElementById('login').addEventListener('submit', async (e) => {
    e.preventDefault();
    const token = new FormData(e.target).get('token');
    const res = await fetch('/auth/login', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify({token}),
    });
    const body = await res.json();
    if (body.ok) { location.href = '/dashboard'; }
    else { document.getElementById('msg').textContent = body.error.message; }
  });
  </script>
</body>
</html>`))

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>flowdeck</title></head>
<body>
  <header>
    <h1>Workflows</h1>
    <span>{{.UserName}}</span>
    <button id="logout">Sign out</button>
  </header>
  <input id="search" placeholder="Search workflows" autocomplete="off">
  <table id="rows"><tbody></tbody></table>
  <nav><button id="prev">Prev</button> <span id="page"></span> <button id="next">Next</button></nav>
  <ul id="notices"></ul>
  <script>
  (() => {
    const proto = location.protocol === 'https:' ? 'wss' : 'ws';
    const ws = new WebSocket(proto + '://' + location.host + '/live' + location.search);
    const search = document.getElementById('search');
    let page = 1, pages = 1;

    // Keystrokes go to the server-side controller; the echo comes back
    // with each rows frame, and URL patches arrive as separate frames.
    search.addEventListener('input', () => {
      ws.send(JSON.stringify({type: 'input', value: search.value}));
    });
    window.addEventListener('popstate', () => {
      ws.send(JSON.stringify({type: 'url', query: location.search.slice(1)}));
    });
    document.getElementById('prev').addEventListener('click', () => go(page - 1));
    document.getElementById('next').addEventListener('click', () => go(page + 1));
    document.getElementById('logout').addEventListener('click', async () => {
      await fetch('/auth/logout', {method: 'POST'});
      location.href = '/login';
    });

    function go(n) {
      if (n < 1 || n > pages) return;
      const params = new URLSearchParams(location.search);
      if (n > 1) params.set('page', n); else params.delete('page');
      history.pushState({}, '', '?' + params.toString());
      ws.send(JSON.stringify({type: 'url', query: params.toString()}));
    }

    ws.onmessage = (e) => {
      const frame = JSON.parse(e.data);
      if (frame.type === 'url') {
        const target = frame.query ? '?' + frame.query : location.pathname;
        if (frame.mode === 'replace') history.replaceState({}, '', target);
        else history.pushState({}, '', target);
      } else if (frame.type === 'rows') {
        if (document.activeElement !== search) search.value = frame.echo;
        page = frame.rows.page;
        pages = Math.max(1, Math.ceil(frame.rows.total / frame.rows.page_size));
        document.getElementById('page').textContent = page + ' / ' + pages;
        const tbody = document.querySelector('#rows tbody');
        tbody.innerHTML = '';
        for (const wf of frame.rows.items) {
          const tr = document.createElement('tr');
          for (const v of [wf.name, wf.status, wf.description]) {
            const td = document.createElement('td');
            td.textContent = v;
            tr.appendChild(td);
          }
          tbody.appendChild(tr);
        }
      } else if (frame.type === 'notice') {
        const li = document.createElement('li');
        li.textContent = frame.notice.message;
        document.getElementById('notices').appendChild(li);
      }
    };
  })();
  </script>
</body>
</html>`))

func (s *Server) handleLoginPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := loginTmpl.Execute(w, nil); err != nil {
		s.logger.Error("render login page", "err", err)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.FromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := dashboardTmpl.Execute(w, struct {
		UserName string
	}{UserName: principal.Name})
	if err != nil {
		s.logger.Error("render dashboard", "err", err)
	}
}
