package web

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>collat — position dashboard</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; background: #101418; color: #e6e6e6; margin: 2rem; }
  h1 { font-size: 1.2rem; letter-spacing: .05em; }
  table { border-collapse: collapse; margin-top: 1rem; min-width: 32rem; }
  td, th { padding: .35rem .8rem; border-bottom: 1px solid #2a2f36; text-align: left; }
  .safe { color: #4caf50; } .caution { color: #ffc107; }
  .elevated { color: #ff9800; } .critical { color: #f44336; }
  #txlog { margin-top: 2rem; font-family: monospace; font-size: .85rem; white-space: pre-wrap; }
</style>
</head>
<body>
<h1>COLLAT POSITION DASHBOARD</h1>
<table id="position">
  <tr><th>account</th><td id="account">—</td></tr>
  <tr><th>collateral</th><td id="collateral">—</td></tr>
  <tr><th>collateral value</th><td id="collateral_value">—</td></tr>
  <tr><th>total debt</th><td id="total_debt">—</td></tr>
  <tr><th>available to borrow</th><td id="available">—</td></tr>
  <tr><th>asset price</th><td id="price">—</td></tr>
  <tr><th>health factor</th><td id="health">—</td></tr>
  <tr><th>liquidatable</th><td id="liquidatable">—</td></tr>
</table>
<div id="txlog"></div>
<script>
function fmt(minor) {
  if (!minor || minor === "0") return "0";
  const neg = minor.startsWith("-");
  let digits = neg ? minor.slice(1) : minor;
  digits = digits.padStart(19, "0");
  const whole = digits.slice(0, -18).replace(/^0+(?=\d)/, "");
  const frac = digits.slice(-18, -14);
  return (neg ? "-" : "") + whole + "." + frac;
}
const pos = new EventSource("/position/stream");
pos.addEventListener("position", function (e) {
  const s = JSON.parse(e.data);
  document.getElementById("account").textContent = s.account || "—";
  document.getElementById("collateral").textContent = fmt(s.collateral_amount);
  document.getElementById("collateral_value").textContent = fmt(s.collateral_value);
  document.getElementById("total_debt").textContent = fmt(s.total_debt);
  document.getElementById("available").textContent = fmt(s.available_to_borrow);
  document.getElementById("price").textContent = fmt(s.asset_price);
  const health = document.getElementById("health");
  health.textContent = s.health_factor;
  health.className = s.health_band;
  document.getElementById("liquidatable").textContent = s.liquidatable ? "yes" : "no";
});
const tx = new EventSource("/tx/stream");
tx.addEventListener("tx", function (e) {
  const ev = JSON.parse(e.data);
  const line = ev.at + " " + ev.kind + " -> " + ev.phase +
    (ev.reference ? " " + ev.reference : "") +
    (ev.reason ? " (" + ev.reason + ")" : "");
  const log = document.getElementById("txlog");
  log.textContent = line + "\n" + log.textContent;
});
</script>
</body>
</html>
`
