package state

import (
	"encoding/binary"
	"fmt"

	"nengajo/native/nengajo"
)

const nengajoAdminRole = "NENGAJO_ADMIN"

var (
	nengajoDesignCountKey = []byte("nengajo/designCount")
	nengajoMintableKey    = []byte("nengajo/mintable")
	nengajoDesignPrefix   = []byte("nengajo/design/")
	nengajoClaimPrefix    = []byte("nengajo/claim/")
	nengajoOwnedPrefix    = []byte("nengajo/owned/")
	nengajoHoldingsPrefix = []byte("nengajo/holdings/")
)

func nengajoDesignKey(id uint64) []byte {
	return appendID(nengajoDesignPrefix, id)
}

func nengajoClaimKey(addr [20]byte, id uint64) []byte {
	return appendID(append(append([]byte(nil), nengajoClaimPrefix...), addr[:]...), id)
}

func nengajoOwnedKey(addr [20]byte, id uint64) []byte {
	return appendID(append(append([]byte(nil), nengajoOwnedPrefix...), addr[:]...), id)
}

func nengajoHoldingsKey(addr [20]byte) []byte {
	return append(append([]byte(nil), nengajoHoldingsPrefix...), addr[:]...)
}

func appendID(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}

type storedDesign struct {
	ID        uint64
	Creator   [20]byte
	URI       string
	MaxSupply uint64
	Minted    uint64
}

// NengajoDesignCount returns the number of registered designs, which is also
// the id the next registration receives.
func (m *Manager) NengajoDesignCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(nengajoDesignCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// NengajoSetDesignCount stores the design counter.
func (m *Manager) NengajoSetDesignCount(count uint64) error {
	return m.KVPut(nengajoDesignCountKey, count)
}

// NengajoDesignGet loads design id.
func (m *Manager) NengajoDesignGet(id uint64) (*nengajo.Design, bool, error) {
	var stored storedDesign
	ok, err := m.KVGet(nengajoDesignKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &nengajo.Design{
		ID:        stored.ID,
		Creator:   stored.Creator,
		URI:       stored.URI,
		MaxSupply: stored.MaxSupply,
		Minted:    stored.Minted,
	}, true, nil
}

// NengajoDesignPut stores design under its id.
func (m *Manager) NengajoDesignPut(design *nengajo.Design) error {
	if design == nil {
		return fmt.Errorf("nengajo: nil design")
	}
	if design.Minted > design.MaxSupply {
		return fmt.Errorf("nengajo: design %d minted %d exceeds max supply %d", design.ID, design.Minted, design.MaxSupply)
	}
	return m.KVPut(nengajoDesignKey(design.ID), storedDesign{
		ID:        design.ID,
		Creator:   design.Creator,
		URI:       design.URI,
		MaxSupply: design.MaxSupply,
		Minted:    design.Minted,
	})
}

// NengajoClaimed reports whether addr has claimed design id.
func (m *Manager) NengajoClaimed(addr [20]byte, id uint64) (bool, error) {
	return m.KVGet(nengajoClaimKey(addr, id), nil)
}

// NengajoSetClaimed records a claim. Claims are never cleared.
func (m *Manager) NengajoSetClaimed(addr [20]byte, id uint64) error {
	return m.KVPut(nengajoClaimKey(addr, id), true)
}

// NengajoIsAdmin reports whether addr holds the admin role.
func (m *Manager) NengajoIsAdmin(addr [20]byte) (bool, error) {
	return m.HasRole(nengajoAdminRole, addr[:])
}

// NengajoAddAdmin grants the admin role.
func (m *Manager) NengajoAddAdmin(addr [20]byte) error {
	return m.SetRole(nengajoAdminRole, addr[:])
}

// NengajoAdmins lists admins in byte order.
func (m *Manager) NengajoAdmins() ([][20]byte, error) {
	members, err := m.RoleMembers(nengajoAdminRole)
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(members))
	for _, member := range members {
		var addr [20]byte
		copy(addr[:], member)
		out = append(out, addr)
	}
	return out, nil
}

// NengajoMintable returns the admin override flag.
func (m *Manager) NengajoMintable() (bool, error) {
	var mintable bool
	if _, err := m.KVGet(nengajoMintableKey, &mintable); err != nil {
		return false, err
	}
	return mintable, nil
}

// NengajoSetMintable stores the admin override flag.
func (m *Manager) NengajoSetMintable(mintable bool) error {
	return m.KVPut(nengajoMintableKey, mintable)
}

// Collectibles tracks how many copies of each design an address holds.
type Collectibles struct {
	manager *Manager
}

// NewCollectibles returns the ownership ledger backed by m.
func NewCollectibles(m *Manager) *Collectibles {
	return &Collectibles{manager: m}
}

// Grant credits one copy of designID to the holder.
func (c *Collectibles) Grant(to [20]byte, designID uint64) error {
	count, err := c.BalanceOf(to, designID)
	if err != nil {
		return err
	}
	if err := c.manager.KVPut(nengajoOwnedKey(to, designID), count+1); err != nil {
		return err
	}
	return c.manager.KVAppend(nengajoHoldingsKey(to), appendID(nil, designID))
}

// BalanceOf returns the number of copies of designID held by owner.
func (c *Collectibles) BalanceOf(owner [20]byte, designID uint64) (uint64, error) {
	var count uint64
	if _, err := c.manager.KVGet(nengajoOwnedKey(owner, designID), &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Holdings lists the design ids owner holds, in the order they were first
// received.
func (c *Collectibles) Holdings(owner [20]byte) ([]uint64, error) {
	var raw [][]byte
	if err := c.manager.KVGetList(nengajoHoldingsKey(owner), &raw); err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != 8 {
			return nil, fmt.Errorf("nengajo: malformed holdings entry %x", entry)
		}
		out = append(out, binary.BigEndian.Uint64(entry))
	}
	return out, nil
}
