/*
Package metrics exposes Prometheus counters and gauges for the Dashboard
Server: active builders by status, port-block utilization, open tab count,
and reverse-proxy request outcomes. Kept from the teacher's pkg/metrics,
repurposed from container-scheduling stats to Agent Farm's domain.
*/
package metrics
