package nengajo

import "nengajo/core/events"

// Bootstrap grants admin rights to the deployer. It is idempotent and must be
// called once when the drop is created.
func (e *Engine) Bootstrap(admin [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	ok, err := e.state.NengajoIsAdmin(admin)
	if err != nil || ok {
		return err
	}
	return e.state.NengajoAddAdmin(admin)
}

// IsAdmin reports whether addr holds admin rights.
func (e *Engine) IsAdmin(addr [20]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.NengajoIsAdmin(addr)
}

// Admins lists the admin set.
func (e *Engine) Admins() ([][20]byte, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.state.NengajoAdmins()
}

// AddAdmins grants admin rights to every address in addrs. Duplicates and
// existing admins are no-ops; there is no removal.
func (e *Engine) AddAdmins(caller [20]byte, addrs [][20]byte) error {
	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	added := make([][20]byte, 0, len(addrs))
	for _, addr := range addrs {
		ok, err := e.state.NengajoIsAdmin(addr)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if err := e.state.NengajoAddAdmin(addr); err != nil {
			return err
		}
		added = append(added, addr)
	}
	e.emit(events.AdminsAdded{Caller: caller, Admins: added})
	return nil
}

// SwitchMintable toggles the override flag and returns the new value.
func (e *Engine) SwitchMintable(caller [20]byte) (bool, error) {
	if err := e.requireAdmin(caller); err != nil {
		return false, err
	}
	current, err := e.state.NengajoMintable()
	if err != nil {
		return false, err
	}
	next := !current
	if err := e.state.NengajoSetMintable(next); err != nil {
		return false, err
	}
	e.emit(events.MintableSwitched{Caller: caller, Mintable: next})
	return next, nil
}

// Mintable returns the raw override flag, ignoring the window.
func (e *Engine) Mintable() (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.state.NengajoMintable()
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	ok, err := e.state.NengajoIsAdmin(caller)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
