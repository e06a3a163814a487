package main

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Meeting jobs</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; background: #fafafa; }
table { border-collapse: collapse; width: 100%; }
th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #ddd; vertical-align: top; }
.completed { color: #1a7f37; } .failed { color: #cf222e; } .processing { color: #9a6700; }
pre { white-space: pre-wrap; margin: 0; }
</style>
</head>
<body>
<h1>Meeting jobs</h1>
<p id="conn">connecting...</p>
<table>
<thead><tr><th>Job</th><th>Status</th><th>Progress</th><th>Message</th><th>Summary</th></tr></thead>
<tbody id="jobs"></tbody>
</table>
<script>
const rows = {};
function row(id) {
  if (!rows[id]) {
    const tr = document.createElement("tr");
    tr.innerHTML = "<td></td><td></td><td></td><td></td><td><pre></pre></td>";
    tr.cells[0].textContent = id;
    document.getElementById("jobs").prepend(tr);
    rows[id] = tr;
  }
  return rows[id];
}
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onopen = () => document.getElementById("conn").textContent = "connected";
ws.onclose = () => document.getElementById("conn").textContent = "disconnected";
ws.onmessage = (msg) => {
  const ev = JSON.parse(msg.data);
  const tr = row(ev.jobId);
  if (ev.eventType === "job.summary") {
    tr.cells[4].firstChild.textContent = "[" + ev.backend + "] " + ev.summary;
    return;
  }
  tr.cells[1].textContent = ev.status;
  tr.cells[1].className = ev.status;
  tr.cells[2].textContent = (ev.progress || 0) + "%";
  tr.cells[3].textContent = ev.message;
};
</script>
</body>
</html>
`
