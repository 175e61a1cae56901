/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package conn

import (
	"time"

	"github.com/quicwire/qtp/pkg/qcrypto"
	"github.com/quicwire/qtp/pkg/qerr"
	"github.com/quicwire/qtp/pkg/sessioncache"
	"github.com/quicwire/qtp/pkg/tlsbridge"
	"github.com/quicwire/qtp/pkg/tparams"
	"github.com/quicwire/qtp/pkg/wire"
)

// Connection implements tlsbridge.Callback: the TLS engine calls these
// methods (synchronously, from within Progress or ProvideData) as the
// handshake advances.
var _ tlsbridge.Callback = (*Connection)(nil)

func levelSpace(l tlsbridge.Level) (wire.Space, bool) {
	switch l {
	case tlsbridge.LevelInitial:
		return wire.SpaceInitial, true
	case tlsbridge.LevelHandshake:
		return wire.SpaceHandshake, true
	case tlsbridge.LevelApplication:
		return wire.SpaceApplication, true
	default:
		return 0, false
	}
}

// InstallReadSecret implements tlsbridge.Callback.
func (c *Connection) InstallReadSecret(level tlsbridge.Level, suite qcrypto.SuiteID, secret []byte) error {
	switch level {
	case tlsbridge.LevelHandshake:
		if c.isClient {
			c.hsServerSecret = secret
		} else {
			c.hsClientSecret = secret
		}
		return c.buildHandshakeKeys(suite)
	case tlsbridge.LevelApplication:
		c.oneRTTSuite = qcrypto.NewSuite(suite)
		if c.isClient {
			c.oneRTTServerSecret = secret
		} else {
			c.oneRTTClientSecret = secret
		}
		return c.buildOneRTTKeys()
	default:
		c.log.WithField("level", level).Debug("ignoring read secret install at unexpected level")
		return nil
	}
}

// InstallWriteSecret implements tlsbridge.Callback.
func (c *Connection) InstallWriteSecret(level tlsbridge.Level, suite qcrypto.SuiteID, secret []byte) error {
	switch level {
	case tlsbridge.LevelHandshake:
		if c.isClient {
			c.hsClientSecret = secret
		} else {
			c.hsServerSecret = secret
		}
		return c.buildHandshakeKeys(suite)
	case tlsbridge.LevelApplication:
		c.oneRTTSuite = qcrypto.NewSuite(suite)
		if c.isClient {
			c.oneRTTClientSecret = secret
		} else {
			c.oneRTTServerSecret = secret
		}
		return c.buildOneRTTKeys()
	default:
		c.log.WithField("level", level).Debug("ignoring write secret install at unexpected level")
		return nil
	}
}

func (c *Connection) buildHandshakeKeys(suiteID qcrypto.SuiteID) error {
	if c.hsClientSecret == nil || c.hsServerSecret == nil {
		return nil
	}
	suite := qcrypto.NewSuite(suiteID)
	clientDir, err := qcrypto.NewDirectionalKeys(suite, qcrypto.DeriveKeys(suite, c.hsClientSecret))
	if err != nil {
		return qerr.Internal("deriving handshake client keys", err)
	}
	serverDir, err := qcrypto.NewDirectionalKeys(suite, qcrypto.DeriveKeys(suite, c.hsServerSecret))
	if err != nil {
		return qerr.Internal("deriving handshake server keys", err)
	}
	c.handshakeKeys = &directionalPair{client: clientDir, server: serverDir}
	c.handshakeSuite = suite
	return nil
}

func (c *Connection) buildOneRTTKeys() error {
	if c.oneRTTClientSecret == nil || c.oneRTTServerSecret == nil {
		return nil
	}
	keys, err := qcrypto.NewOneRTTKeys(c.oneRTTSuite, c.oneRTTClientSecret, c.oneRTTServerSecret, c.isClient)
	if err != nil {
		return qerr.Internal("deriving 1-RTT keys", err)
	}
	c.oneRTT = keys
	return nil
}

// EmitHandshakeData implements tlsbridge.Callback.
func (c *Connection) EmitHandshakeData(level tlsbridge.Level, data []byte) {
	space, ok := levelSpace(level)
	if !ok {
		// LevelEarlyData shares Application's packet-number space but
		// never carries CRYPTO frames of its own.
		return
	}
	c.space(space).cryptoSend.Write(data)
}

// Alert implements tlsbridge.Callback: a fatal TLS alert closes the
// connection with a CRYPTO_ERROR transport code.
func (c *Connection) Alert(code uint8) {
	c.closer.Close(qerr.Transport(qerr.CryptoErrorBase+qerr.Code(code), "TLS alert"), c.now(), c.ptoDuration())
}

// Flush implements tlsbridge.Callback by setting tlsDone; progress()
// clears it and calls Progress on every pass regardless.
func (c *Connection) Flush() { c.tlsDone = true }

// HandshakeComplete implements tlsbridge.Callback. Per section 4.11, a
// server's handshake is confirmed the moment TLS reports completion; it
// queues HANDSHAKE_DONE (sent at the next CreateUDPPayload) and is never
// sent again once acknowledged. A client defers "confirmed" until the
// HANDSHAKE_DONE frame actually arrives (frames.go), so this is a no-op
// for clients.
func (c *Connection) HandshakeComplete() {
	if !c.isClient {
		c.handshakeConfirmed = true
		c.handshakeDoneOwed = true
	}
}

// progress drives the TLS engine forward, feeding it any newly
// reassembled CRYPTO bytes first. It is re-entrant-guarded since
// Callback methods invoked from within Progress must never recurse back
// into it.
func (c *Connection) progress() error {
	if c.tls == nil || c.tlsProgressing {
		return nil
	}
	c.tlsProgressing = true
	defer func() { c.tlsProgressing = false }()

	for _, lvl := range []tlsbridge.Level{tlsbridge.LevelInitial, tlsbridge.LevelHandshake, tlsbridge.LevelApplication} {
		space, _ := levelSpace(lvl)
		if data := c.space(space).cryptoRecv.ReadContiguous(); len(data) > 0 {
			if err := c.tls.ProvideData(lvl, data); err != nil {
				return err
			}
		}
	}
	c.tlsDone = false
	if err := c.tls.Progress(); err != nil {
		return err
	}

	if !c.peerParamsSet {
		if data, ok := c.tls.PeerQUICTransportParams(); ok {
			params, err := tparams.Decode(data)
			if err != nil {
				return qerr.Transport(qerr.TransportParameterError, err.Error())
			}
			c.applyPeerParams(params)
		}
	}
	return nil
}

// applyPeerParams installs the peer's transport parameters once the TLS
// engine has surfaced them, raising every flow-control limit that
// derives from them. Parameters only ever raise limits here: a
// connection never reopens after they arrive, so there is nothing to
// lower.
func (c *Connection) applyPeerParams(p tparams.Params) {
	c.peerParams = p
	c.peerParamsSet = true

	c.streams.ConnSendLimit().SetLimit(p.InitialMaxData)
	c.streams.SetPeerStreamDataLimits(
		p.InitialMaxStreamDataBidiLocal,
		p.InitialMaxStreamDataBidiRemote,
		p.InitialMaxStreamDataUni,
	)
	c.streams.SetPeerStreamLimit(true, p.InitialMaxStreamsBidi)
	c.streams.SetPeerStreamLimit(false, p.InitialMaxStreamsUni)
	for _, e := range c.streams.Streams() {
		if e.Send == nil {
			continue
		}
		limit := p.InitialMaxStreamDataUni
		if e.Send.ID.Bidi() {
			if e.Send.ID.ClientInitiated() == c.isClient {
				limit = p.InitialMaxStreamDataBidiRemote
			} else {
				limit = p.InitialMaxStreamDataBidiLocal
			}
		}
		e.Send.Limit.SetLimit(limit)
	}

	// p.HasPreferredAddress is preserved opaquely on tparams.Params;
	// migrating to a server-preferred address is out of scope, so it is
	// otherwise ignored here.
	c.localCIDs.SetActiveLimit(p.ActiveConnectionIDLimit)
}

func (c *Connection) now() time.Time { return c.clock.Now() }

// saveSession persists the current NEW_TOKEN value and the 0-RTT-eligible
// subset of the peer's transport parameters, per section 6.6. A no-op
// for servers, or for clients with no SessionStore configured.
func (c *Connection) saveSession() {
	if !c.isClient || c.sessionStore == nil || len(c.peerToken) == 0 || !c.peerParamsSet {
		return
	}
	c.sessionStore.Save(c.serverName, sessioncache.Entry{
		Token:  c.peerToken,
		Params: tparams.ZeroRTTRemembered(c.peerParams),
	})
}
