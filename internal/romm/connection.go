// Romshelf - ROM Library Synchronization Engine
// Copyright 2026 J. Halloran (halcyonforge)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/halcyonforge/romshelf

package romm

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/halcyonforge/romshelf/internal/config"
	"github.com/halcyonforge/romshelf/internal/logging"
	"github.com/halcyonforge/romshelf/internal/models/romm"
	"github.com/halcyonforge/romshelf/internal/store"
)

// rommDevice builds the device payload sent to the registration API.
func rommDevice(name string) romm.Device {
	return romm.Device{
		Name:          name,
		Platform:      runtime.GOOS,
		ClientVersion: clientAppVersion,
	}
}

// clientAppVersion identifies this client build to the device API.
const clientAppVersion = "1.4.2"

// tokenScope is the scope requested at login. It covers library reads and
// the user-property and collection write paths the sync engine uses.
const tokenScope = "me.read me.write roms.read roms.user.write collections.read collections.write platforms.read assets.read"

// deviceTokenScope is appended for servers with the device API. Older
// servers reject unknown scopes at the token endpoint, so it is only
// requested where the endpoints exist.
const deviceTokenScope = "devices.read devices.write"

// loginScope builds the token scope for the given server version.
func loginScope(version string) string {
	if SupportsDeviceAPI(version) {
		return tokenScope + " " + deviceTokenScope
	}
	return tokenScope
}

// ConnState is the connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateFailed       ConnState = "failed"
)

// ConnectionStatus is an observable snapshot of the connection manager.
type ConnectionStatus struct {
	State         ConnState `json:"state"`
	BaseURL       string    `json:"base_url,omitempty"`
	ServerVersion string    `json:"server_version,omitempty"`
	// Reason carries the failure description when State is failed.
	Reason string `json:"reason,omitempty"`
}

// ConnectionManager owns the lifecycle of the remote API handle: URL
// probing, authentication, device registration and reconnection after a
// restart. All methods are safe for concurrent use.
type ConnectionManager struct {
	mu     sync.RWMutex
	status ConnectionStatus
	client *Client

	store      *store.Store
	opts       ClientOptions
	deviceName string
}

// NewConnectionManager creates a manager that persists connection state in
// the given store.
func NewConnectionManager(st *store.Store, cfg config.ServerConfig, deviceName string) *ConnectionManager {
	return &ConnectionManager{
		status: ConnectionStatus{State: StateDisconnected},
		store:  st,
		opts: ClientOptions{
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		},
		deviceName: deviceName,
	}
}

// Status returns the current connection snapshot.
func (m *ConnectionManager) Status() ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Client returns the active API client, or nil when disconnected.
func (m *ConnectionManager) Client() ClientInterface {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil
	}
	return m.client
}

// ServerVersion returns the negotiated server version, or "" when
// disconnected.
func (m *ConnectionManager) ServerVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.ServerVersion
}

// candidateURLs expands user input into the base URLs to probe, in order.
// An explicit scheme is honored as-is. Bare IPs and localhost try http
// first since home-lab servers rarely carry certificates; bare hostnames
// try https first.
func candidateURLs(input string) []string {
	input = strings.TrimRight(strings.TrimSpace(input), "/")
	if input == "" {
		return nil
	}
	if strings.Contains(input, "://") {
		return []string{input}
	}

	host := input
	if h, _, err := net.SplitHostPort(input); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	if host == "localhost" || net.ParseIP(host) != nil {
		return []string{"http://" + input, "https://" + input}
	}
	return []string{"https://" + input, "http://" + input}
}

// Connect probes the candidate URLs, authenticates, persists the resulting
// connection settings and registers the device when the server supports it.
// An empty password with a non-empty token skips the login step.
func (m *ConnectionManager) Connect(ctx context.Context, input, username, password, token string) error {
	m.setStatus(ConnectionStatus{State: StateConnecting})

	var (
		client  *Client
		version string
		lastErr error
	)
	for _, baseURL := range candidateURLs(input) {
		probe := NewClient(baseURL, m.opts)
		hb, err := probe.Heartbeat(ctx)
		if err != nil {
			logging.Debug().Err(err).Str("url", baseURL).Msg("Heartbeat probe failed")
			lastErr = err
			continue
		}
		client = probe
		version = hb.System.Version
		break
	}
	if client == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("no server URL to probe")
		}
		m.setStatus(ConnectionStatus{State: StateFailed, Reason: lastErr.Error()})
		return fmt.Errorf("server unreachable: %w", lastErr)
	}

	if token == "" {
		resp, err := client.Login(ctx, username, password, loginScope(version))
		if err != nil {
			m.setStatus(ConnectionStatus{State: StateFailed, Reason: "authentication failed"})
			return fmt.Errorf("login failed: %w", err)
		}
		token = resp.AccessToken
	}
	client = client.WithToken(token)

	if _, err := client.GetCurrentUser(ctx); err != nil {
		m.setStatus(ConnectionStatus{State: StateFailed, Reason: "token rejected"})
		return fmt.Errorf("token validation failed: %w", err)
	}

	err := m.store.PutConnectionSettings(&store.ConnectionSettings{
		BaseURL:  client.BaseURL(),
		Username: username,
		Password: password,
		Token:    token,
	})
	if err != nil {
		return fmt.Errorf("persist connection settings: %w", err)
	}

	m.mu.Lock()
	m.client = client
	m.status = ConnectionStatus{
		State:         StateConnected,
		BaseURL:       client.BaseURL(),
		ServerVersion: version,
	}
	m.mu.Unlock()

	logging.Info().Str("url", client.BaseURL()).Str("version", version).Msg("Connected to RomM server")

	if SupportsDeviceAPI(version) {
		if err := m.ensureDeviceRegistered(ctx, client); err != nil {
			// Registration is best effort; the connection stays up.
			logging.Warn().Err(err).Msg("Device registration failed")
		}
	}
	return nil
}

// Reconnect restores the connection from persisted settings after a
// restart. The heartbeat is retried twice with short backoff before
// falling back to a full Connect with the stored credentials.
func (m *ConnectionManager) Reconnect(ctx context.Context) error {
	cs, err := m.store.GetConnectionSettings()
	if err != nil {
		return fmt.Errorf("load connection settings: %w", err)
	}
	if cs == nil {
		return fmt.Errorf("no persisted connection")
	}

	m.setStatus(ConnectionStatus{State: StateConnecting})
	client := NewClient(cs.BaseURL, m.opts).WithToken(cs.Token)

	backoff := []time.Duration{0, time.Second, 2 * time.Second}
	var lastErr error
	for _, wait := range backoff {
		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		hb, err := client.Heartbeat(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := client.GetCurrentUser(ctx); err != nil {
			if IsAuthError(err) {
				// Token expired; re-authenticate from scratch.
				break
			}
			lastErr = err
			continue
		}

		m.mu.Lock()
		m.client = client
		m.status = ConnectionStatus{
			State:         StateConnected,
			BaseURL:       cs.BaseURL,
			ServerVersion: hb.System.Version,
		}
		m.mu.Unlock()
		logging.Info().Str("url", cs.BaseURL).Msg("Reconnected to RomM server")
		return nil
	}

	// Last resort: full re-init with the stored credentials.
	if cs.Username != "" && cs.Password != "" {
		return m.Connect(ctx, cs.BaseURL, cs.Username, cs.Password, "")
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("token rejected and no stored credentials")
	}
	m.setStatus(ConnectionStatus{State: StateFailed, Reason: lastErr.Error()})
	return fmt.Errorf("reconnect failed: %w", lastErr)
}

// Disconnect drops the active client and clears the persisted settings.
func (m *ConnectionManager) Disconnect() error {
	m.mu.Lock()
	m.client = nil
	m.status = ConnectionStatus{State: StateDisconnected}
	m.mu.Unlock()
	return m.store.ClearConnectionSettings()
}

// ensureDeviceRegistered registers this client with the device API once per
// client version. An update against a stale device id falls back to a fresh
// registration.
func (m *ConnectionManager) ensureDeviceRegistered(ctx context.Context, client *Client) error {
	reg, err := m.store.GetDeviceRegistration()
	if err != nil {
		return err
	}
	if reg != nil && reg.ClientVersion == clientAppVersion {
		return nil
	}

	device := rommDevice(m.deviceName)
	if reg != nil {
		device.ID = reg.DeviceID
		updated, err := client.UpdateDevice(ctx, device)
		if err == nil {
			return m.store.PutDeviceRegistration(&store.DeviceRegistration{
				DeviceID:      updated.ID,
				ClientVersion: clientAppVersion,
			})
		}
		logging.Debug().Err(err).Str("device_id", reg.DeviceID).
			Msg("Device update failed, registering fresh")
		device.ID = ""
	}

	created, err := client.RegisterDevice(ctx, device)
	if err != nil {
		return err
	}
	return m.store.PutDeviceRegistration(&store.DeviceRegistration{
		DeviceID:      created.ID,
		ClientVersion: clientAppVersion,
	})
}

func (m *ConnectionManager) setStatus(st ConnectionStatus) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()
}
