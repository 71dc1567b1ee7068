package web

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Bar Replay</title>
  <script src="https://unpkg.com/lightweight-charts@4.1.3/dist/lightweight-charts.standalone.production.js"></script>
  <link href="https://fonts.googleapis.com/css2?family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-soft:#9c9c9c; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body { margin:0; padding:1.5rem; background:var(--bg); color:var(--ink); font-family:'Space Mono',monospace; }
    header { display:flex; gap:1rem; align-items:center; flex-wrap:wrap; margin-bottom:1rem; }
    header h1 { font-size:1rem; margin:0 1rem 0 0; }
    button, input, select { font-family:inherit; font-size:.8rem; padding:.3rem .6rem; border:1px solid var(--ink); background:var(--panel); }
    #chart { height:60vh; border:1px solid var(--ink); }
    #panel { display:grid; grid-template-columns:repeat(auto-fit, minmax(180px, 1fr)); gap:.5rem; margin-top:1rem; }
    .stat { background:var(--panel); padding:.5rem; }
    .stat span { display:block; color:var(--ink-soft); font-size:.7rem; }
    #signal { font-weight:700; }
  </style>
</head>
<body>
  <header>
    <h1 id="title">replay</h1>
    <button onclick="post('/api/replay/step')">step</button>
    <button onclick="post('/api/replay/play', {speed: +document.getElementById('speed').value})">play</button>
    <button onclick="post('/api/replay/pause')">pause</button>
    <input id="speed" type="number" value="1" min="0.1" max="100" step="0.5" />
    <select id="tf" onchange="switchTimeframe(this.value)"></select>
    <input id="size" type="number" value="1" min="0" step="0.1" />
    <button onclick="post('/api/orders/market', {side:'long', size:document.getElementById('size').value})">buy</button>
    <button onclick="post('/api/orders/market', {side:'short', size:document.getElementById('size').value})">sell</button>
    <button onclick="post('/api/positions/close-all')">flatten</button>
  </header>
  <div id="chart"></div>
  <div id="panel">
    <div class="stat"><span>equity</span><b id="equity">-</b></div>
    <div class="stat"><span>cash</span><b id="cash">-</b></div>
    <div class="stat"><span>unrealized</span><b id="upnl">-</b></div>
    <div class="stat"><span>realized</span><b id="rpnl">-</b></div>
    <div class="stat"><span>positions</span><b id="positions">-</b></div>
    <div class="stat"><span>signal</span><b id="signal">-</b></div>
  </div>
  <script>
    const chart = LightweightCharts.createChart(document.getElementById('chart'), { autoSize:true });
    const candles = chart.addCandlestickSeries();
    const lines = {};
    let timeframe = '';

    async function post(url, body) {
      const res = await fetch(url, { method:'POST', headers:{'Content-Type':'application/json'}, body: body ? JSON.stringify(body) : '' });
      if (!res.ok) { const e = await res.json(); alert(e.error); }
    }

    async function switchTimeframe(tf) {
      await post('/api/replay/timeframe', { timeframe: tf });
      await reload();
    }

    async function reload() {
      const state = await (await fetch('/api/state')).json();
      timeframe = state.frame.timeframe;
      document.getElementById('title').textContent = state.frame.symbol + ' ' + timeframe;
      const bars = await (await fetch('/api/candles/' + timeframe)).json();
      candles.setData(bars.map(toBar));
      for (const id in state.styles) {
        const style = state.styles[id];
        if (!lines[id]) lines[id] = chart.addLineSeries({ color: style.color || '#888', lineWidth:1 });
        lines[id].applyOptions({ visible: style.visible, color: style.color || '#888' });
        const res = await fetch('/api/indicators/' + timeframe + '/' + id);
        if (res.ok) {
          const pts = await res.json();
          lines[id].setData(pts.map(p => ({ time:p.time, value:p.value })));
        }
      }
      render(state.frame);
    }

    function toBar(c) { return { time:c.time, open:c.open, high:c.high, low:c.low, close:c.close }; }

    function render(f) {
      const a = f.account;
      document.getElementById('equity').textContent = a.equity;
      document.getElementById('cash').textContent = a.cash;
      document.getElementById('upnl').textContent = a.unrealized_pnl;
      document.getElementById('rpnl').textContent = a.realized_pnl;
      document.getElementById('positions').textContent = (a.positions || []).length;
      document.getElementById('signal').textContent = f.signal ? f.signal.recommendation : '-';
    }

    function onFrame(f) {
      if (f.timeframe !== timeframe || ['jump', 'reset', 'load'].includes(f.transition)) {
        reload();
        return;
      }
      (f.revealed || []).forEach(c => candles.update(toBar(c)));
      for (const id in (f.indicators || {})) {
        const p = f.indicators[id];
        if (lines[id] && p) lines[id].update({ time:p.time, value:p.value });
      }
      render(f);
    }

    fetch('/api/state').then(r => r.json()).then(s => {
      const select = document.getElementById('tf');
      (s.timeframes || [s.frame.timeframe]).forEach(tf => {
        const o = document.createElement('option');
        o.value = tf; o.textContent = tf; o.selected = tf === s.frame.timeframe;
        select.appendChild(o);
      });
      reload();
    });

    const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
    ws.onmessage = ev => onFrame(JSON.parse(ev.data));
  </script>
</body>
</html>
`
