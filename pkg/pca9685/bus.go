package pca9685

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Bus is the register-level transport the driver needs.
// Tx writes w and then reads len(r) bytes, addressed to the device.
type Bus interface {
	Tx(w, r []byte) error
	Close() error
}

// periphBus adapts a periph I2C device handle to Bus.
type periphBus struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

func (b *periphBus) Tx(w, r []byte) error {
	return b.dev.Tx(w, r)
}

func (b *periphBus) Close() error {
	return b.bus.Close()
}

// OpenI2C opens the named I2C bus and binds it to addr.
func OpenI2C(name string, addr uint16) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}

	return &periphBus{
		bus: bus,
		dev: &i2c.Dev{Bus: bus, Addr: addr},
	}, nil
}

// MemoryBus is an in-memory register file standing in for the chip when no
// hardware is attached. Multi-byte writes auto-increment the register
// pointer like the real device.
type MemoryBus struct {
	mu     sync.Mutex
	regs   [256]byte
	writes int
	closed bool
}

// NewMemoryBus returns an empty register file.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if len(w) == 0 {
		return errors.New("missing register address")
	}
	reg := w[0]
	for i, v := range w[1:] {
		b.regs[reg+byte(i)] = v
		b.writes++
	}
	for i := range r {
		r[i] = b.regs[reg+byte(i)]
	}
	return nil
}

// Register returns the current value of reg.
func (b *MemoryBus) Register(reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[reg]
}

// Writes returns the number of register bytes written.
func (b *MemoryBus) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
