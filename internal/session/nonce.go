package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// nonceTick is half of a nonce's lifetime. A nonce is accepted during the
// tick it was created in and the one after.
const nonceTick = 12 * time.Hour

// Nonces creates and verifies the AJAX nonces bound to a session.
type Nonces struct {
	secret []byte
	Now    func() time.Time
}

// NewNonces returns nonces signed with the merchant session secret.
func NewNonces(secret string) *Nonces {
	return &Nonces{secret: []byte(secret), Now: time.Now}
}

func (n *Nonces) tick() int64 {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	return now().Unix()/int64(nonceTick.Seconds()) + 1
}

func (n *Nonces) sign(tick int64, action, sessionID string) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10) + "|" + action + "|" + sessionID))
	sum := hex.EncodeToString(mac.Sum(nil))
	return sum[len(sum)-12 : len(sum)-2]
}

// Create returns the nonce for action in this session.
func (n *Nonces) Create(action, sessionID string) string {
	return n.sign(n.tick(), action, sessionID)
}

// Verify checks a nonce against the current and the previous tick.
func (n *Nonces) Verify(nonce, action, sessionID string) bool {
	if nonce == "" {
		return false
	}
	tick := n.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(nonce), []byte(n.sign(t, action, sessionID))) {
			return true
		}
	}
	return false
}
