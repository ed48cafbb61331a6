// Package ssh provides an SFTP client for fetching assets from a shared cache
// on a remote host. Client satisfies installers.RemoteFS.
package ssh
