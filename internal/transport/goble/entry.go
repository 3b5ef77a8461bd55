package goble

import (
	ble "github.com/go-ble/ble"

	"github.com/srg/hslble/internal/gatt"
)

// bleEntry adapts ble.Advertisement to transport.Entry.
type bleEntry struct {
	adv ble.Advertisement
}

func newEntry(adv ble.Advertisement) *bleEntry { return &bleEntry{adv: adv} }

func (e *bleEntry) Address() string { return e.adv.Addr().String() }

func (e *bleEntry) Name() string { return e.adv.LocalName() }

func (e *bleEntry) RSSI() int { return e.adv.RSSI() }

func (e *bleEntry) AdvertisedServices() []gatt.UUID {
	uuids := e.adv.Services()
	out := make([]gatt.UUID, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, gatt.Parse(u.String()))
	}
	return out
}

func (e *bleEntry) ManufacturerData() []byte { return e.adv.ManufacturerData() }
