package api

import "github.com/gofiber/fiber/v2"

// Visualizer serves a self-contained page that renders the live graphs from
// the WebSocket stream. Meant for debugging, not production traffic.
func (h *Handler) Visualizer(c *fiber.Ctx) error {
	c.Type("html")
	return c.SendString(visualizerPage)
}

const visualizerPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Transport Graph Visualizer</title>
<style>
  body { font-family: sans-serif; margin: 1rem; }
  #status { color: #666; margin-bottom: 0.5rem; }
  canvas { border: 1px solid #ccc; }
  select { margin-bottom: 0.5rem; }
  .impacted { color: #c00; }
</style>
</head>
<body>
<h2>Transport Graph Visualizer</h2>
<div id="status">connecting…</div>
<select id="mode"></select>
<canvas id="map" width="900" height="600"></canvas>
<script>
let graphs = {};
const status = document.getElementById('status');
const modeSelect = document.getElementById('mode');
const canvas = document.getElementById('map');
const ctx = canvas.getContext('2d');

const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/transport/graphs/stream');
ws.onopen = () => { status.textContent = 'connected'; };
ws.onclose = () => { status.textContent = 'disconnected'; };
ws.onmessage = (msg) => {
  const event = JSON.parse(msg.data);
  if (event.type === 'snapshot') {
    graphs = event.graphs;
    refreshModes();
  } else if (event.type === 'edge_updated' && graphs[event.edge.mode]) {
    const edges = graphs[event.edge.mode].edges;
    for (const e of edges) {
      if (e.source === event.edge.source && e.target === event.edge.target && e.key === event.edge.key) {
        e.weight = event.edge.weight;
      }
    }
  }
  draw();
};

function refreshModes() {
  const current = modeSelect.value;
  modeSelect.innerHTML = '';
  for (const mode of Object.keys(graphs).sort()) {
    const opt = document.createElement('option');
    opt.value = mode; opt.textContent = mode;
    modeSelect.appendChild(opt);
  }
  if (current && graphs[current]) modeSelect.value = current;
}
modeSelect.onchange = draw;

function draw() {
  const graph = graphs[modeSelect.value];
  ctx.clearRect(0, 0, canvas.width, canvas.height);
  if (!graph || !graph.nodes.length) return;

  let minLat = Infinity, maxLat = -Infinity, minLon = Infinity, maxLon = -Infinity;
  for (const n of graph.nodes) {
    minLat = Math.min(minLat, n.latitude); maxLat = Math.max(maxLat, n.latitude);
    minLon = Math.min(minLon, n.longitude); maxLon = Math.max(maxLon, n.longitude);
  }
  const pad = 20;
  const px = (n) => pad + (n.longitude - minLon) / (maxLon - minLon || 1) * (canvas.width - 2 * pad);
  const py = (n) => canvas.height - pad - (n.latitude - minLat) / (maxLat - minLat || 1) * (canvas.height - 2 * pad);
  const byId = {};
  for (const n of graph.nodes) byId[n.id] = n;

  for (const e of graph.edges) {
    const a = byId[e.source], b = byId[e.target];
    if (!a || !b) continue;
    ctx.strokeStyle = e.weight > (e.default_weight || e.weight) + 1e-6 ? '#c00' : '#888';
    ctx.beginPath(); ctx.moveTo(px(a), py(a)); ctx.lineTo(px(b), py(b)); ctx.stroke();
  }
  for (const n of graph.nodes) {
    ctx.fillStyle = n.bike_accessible ? '#080' : '#036';
    ctx.beginPath(); ctx.arc(px(n), py(n), 3, 0, 2 * Math.PI); ctx.fill();
  }
}
</script>
</body>
</html>`
