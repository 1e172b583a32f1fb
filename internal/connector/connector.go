// Package connector supplies the printer-connection facility the
// pipeline engine consumes: connect_to_printer(name, type) -> a
// writable descriptor for the last pipeline stage to inherit.
package connector

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Connector resolves a named, typed printer to a writable *os.File
// suitable for use as an exec.Cmd's Stdout — i.e. backed by a real
// kernel file descriptor, not an in-process io.Writer.
type Connector interface {
	Connect(name, typeName string) (*os.File, error)
}

// FileConnector backs every printer with an append-mode spool file on
// local disk, one file per printer name, under Dir. This is the
// default connector: it requires no external network endpoint and is
// what a fresh checkout runs against out of the box.
type FileConnector struct {
	Dir string
}

// NewFileConnector builds a FileConnector rooted at dir, creating dir
// if it does not already exist.
func NewFileConnector(dir string) (*FileConnector, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("connector: create spool dir %q: %w", dir, err)
	}
	return &FileConnector{Dir: dir}, nil
}

func (c *FileConnector) Connect(name, typeName string) (*os.File, error) {
	path := filepath.Join(c.Dir, name+".spool")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("connector: open spool file for printer %q: %w", name, err)
	}
	return f, nil
}

// TCPConnector dials a real TCP endpoint per printer name and hands
// the pipeline's last stage the raw socket. Endpoints is a static
// name -> "host:port" map populated from configuration.
type TCPConnector struct {
	Endpoints map[string]string
	Timeout   time.Duration
}

// NewTCPConnector builds a TCPConnector over the given name->address
// map, dialing with timeout (defaulting to 5s if zero).
func NewTCPConnector(endpoints map[string]string, timeout time.Duration) *TCPConnector {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &TCPConnector{Endpoints: endpoints, Timeout: timeout}
}

func (c *TCPConnector) Connect(name, typeName string) (*os.File, error) {
	addr, ok := c.Endpoints[name]
	if !ok {
		return nil, fmt.Errorf("connector: no network endpoint configured for printer %q", name)
	}
	conn, err := net.DialTimeout("tcp", addr, c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("connector: dial printer %q at %s: %w", name, addr, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("connector: unexpected connection type for printer %q", name)
	}
	// File() returns a duplicate of the socket's underlying fd as an
	// *os.File, which an exec.Cmd can use directly as Stdout; the
	// original net.Conn is redundant afterwards.
	f, err := tcpConn.File()
	tcpConn.Close()
	if err != nil {
		return nil, fmt.Errorf("connector: dup socket for printer %q: %w", name, err)
	}
	return f, nil
}
