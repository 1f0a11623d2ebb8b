// Package mpd fetches artwork from a Music Player Daemon.
package mpd

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-coverart/internal/domain/artwork"
)

// Client is a lazily opened MPD connection used for artwork commands. It
// reconnects when the server stops answering pings.
type Client struct {
	mu       sync.Mutex
	conn     *mpd.Client
	addr     string
	password string
}

// NewClient creates a client for the MPD server at host:port. Nothing is
// dialed until the first request.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		password: password,
	}
}

// Picture returns the artwork MPD holds for uri: the picture embedded in the
// file, else the cover file of its directory.
func (c *Client) Picture(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connLocked()
	if err != nil {
		return nil, err
	}
	return pictureOf(ctx, uri, conn.ReadPicture, conn.AlbumArt)
}

// pictureOf asks readPicture first and albumArt only when it had nothing.
func pictureOf(ctx context.Context, uri string, readPicture, albumArt func(string) ([]byte, error)) ([]byte, error) {
	data, err := readPicture(uri)
	if err == nil && len(data) > 0 {
		return data, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	log.Debug().Err(err).Str("uri", uri).Msg("No embedded picture in MPD, trying album art")

	data, err = albumArt(uri)
	if err != nil {
		return nil, fmt.Errorf("mpd albumart: %w", err)
	}
	if len(data) == 0 {
		return nil, artwork.ErrNoArtwork
	}
	return data, nil
}

// connLocked returns a live connection, dialing or redialing as needed.
func (c *Client) connLocked() (*mpd.Client, error) {
	if c.conn != nil {
		if err := c.conn.Ping(); err == nil {
			return c.conn, nil
		}
		log.Warn().Str("addr", c.addr).Msg("MPD connection lost, reconnecting")
		c.conn.Close()
		c.conn = nil
	}

	log.Debug().Str("addr", c.addr).Msg("Connecting to MPD")
	conn, err := mpd.Dial("tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MPD: %w", err)
	}
	if c.password != "" {
		if err := conn.Command("password %s", c.password).OK(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	c.conn = conn
	return conn, nil
}

// Close closes the connection if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
