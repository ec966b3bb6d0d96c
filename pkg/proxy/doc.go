/*
Package proxy implements the Dashboard Server's /terminal/<id> reverse
proxy (§4.6): strip the id prefix, resolve it to a loopback port from a
fresh State Store snapshot, and forward the request with
net/http/httputil.NewSingleHostReverseProxy — the same director
customization and bad-gateway error handling the teacher's
pkg/ingress/proxy.go uses for its service backends, here pointed at one
child terminal bridge per request instead of a load-balanced backend set.
WebSocket upgrades are tunneled separately by pkg/proxy/websocket.go since
ReverseProxy does not forward the Upgrade handshake itself.
*/
package proxy
