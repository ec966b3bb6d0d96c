/*
Package supervisor creates and destroys terminal-multiplexer sessions and
web-terminal bridge processes, and reaps their children (§4.3). It shells
out to the multiplexer binary (tmux by default) and to a bridge binary the
same way the teacher's test/framework/process.go drives its own child
processes: exec.Command plus explicit SIGTERM-then-SIGKILL shutdown, since
no example repo in the pack wraps a terminal multiplexer natively.
*/
package supervisor
