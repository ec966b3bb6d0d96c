/*
Package pathsafe validates every file path Agent Farm accepts from the
network or a terminal before it ever reaches the filesystem (§7): decode
URL-encoding, reject absolute paths and `..` segments, resolve against the
project root, and re-check the prefix after symlink resolution. Every
caller in pkg/dashboard routes untrusted path input through Validate before
any stat, open, or spawn.
*/
package pathsafe
