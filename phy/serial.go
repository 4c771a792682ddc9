package phy

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
)

// SerialPhy implements Phy over a UART link to a radio microcontroller:
// one reader goroutine reassembling framed traffic, one writer goroutine
// serializing it back out, and a broker loop in between that correlates
// control replies with their requests.
type SerialPhy struct {
	port io.ReadWriteCloser

	dataTX chan *dataFrame
	dataRX chan *dataFrame
	ctrlTX chan *controlFrame
	died   chan struct{}

	mu              sync.Mutex
	rxCallback      RxCallback
	defaultSettings []Setting
	closeOnce       sync.Once
}

// ctrlTimeout is returned by ctrl() when the microcontroller doesn't
// reply within the 3-second window.
type ctrlTimeout string

func (c ctrlTimeout) Error() string { return string(c) }

// NewSerialPhy opens the given serial port and starts the transport
// goroutines. The returned Phy is live but not yet transmitting settings
// or frames until StartStack is called.
func NewSerialPhy(path string, baud uint) (*SerialPhy, error) {
	opts := serial.OpenOptions{
		PortName:              path,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
		MinimumReadSize:       1,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("phy: opening serial port %s: %w", path, err)
	}

	p := &SerialPhy{
		port:   port,
		dataTX: make(chan *dataFrame),
		dataRX: make(chan *dataFrame),
		ctrlTX: make(chan *controlFrame, 4),
		died:   make(chan struct{}),
	}
	go p.run()
	go p.dispatchRx()
	return p, nil
}

// SetDefaultSettings implements Phy.
func (p *SerialPhy) SetDefaultSettings(settings []Setting) {
	p.mu.Lock()
	p.defaultSettings = settings
	p.mu.Unlock()
}

// SetDefaultRxCallback implements Phy.
func (p *SerialPhy) SetDefaultRxCallback(cb RxCallback) {
	p.mu.Lock()
	p.rxCallback = cb
	p.mu.Unlock()
}

// StartStack implements Phy: it pushes the recorded default settings to
// the microcontroller one control frame at a time, then enables RX.
func (p *SerialPhy) StartStack(priority int) error {
	if priority <= 0 {
		return fmt.Errorf("phy: priority must be strictly positive, got %d", priority)
	}
	select {
	case <-p.died:
		return errors.New("phy: serial link faulted")
	default:
	}

	p.mu.Lock()
	settings := p.defaultSettings
	p.mu.Unlock()
	for _, s := range settings {
		if err := p.applySetting(s); err != nil {
			return err
		}
	}
	if _, _, err := p.ctrl(ControlSetRFOn, []byte{1}); err != nil {
		return fmt.Errorf("phy: enabling RX: %w", err)
	}
	return nil
}

// SetRFOn directly toggles the radio's receive state. It is not part of
// the Phy interface: StartStack already turns RX on after applying the
// default settings, so this is only needed by a standalone teardown tool.
func (p *SerialPhy) SetRFOn(on bool) error {
	var v byte
	if on {
		v = 1
	}
	status, _, err := p.ctrl(ControlSetRFOn, []byte{v})
	if err != nil {
		return fmt.Errorf("phy: toggling RF on=%v: %w", on, err)
	}
	if status != ControlStatusOK {
		return fmt.Errorf("phy: toggling RF on=%v rejected: %s", on, StatusString(status))
	}
	return nil
}

func (p *SerialPhy) applySetting(s Setting) error {
	cmd, data, err := settingCommand(s)
	if err != nil {
		return err
	}
	status, _, err := p.ctrl(cmd, data)
	if err != nil {
		return fmt.Errorf("phy: applying setting %s: %w", s.Name, err)
	}
	if status != ControlStatusOK {
		return fmt.Errorf("phy: setting %s rejected: %s", s.Name, StatusString(status))
	}
	return nil
}

// PostTxAction implements Phy.
func (p *SerialPhy) PostTxAction(when time.Duration, overrides []Setting, data []byte) error {
	select {
	case <-p.died:
		return errors.New("phy: serial link faulted")
	default:
	}

	send := func() {
		for _, s := range overrides {
			_ = p.applySetting(s)
		}
		p.dataTX <- newDataFrame(data)
	}
	if when <= TmNow {
		send()
		return nil
	}
	time.AfterFunc(when, send)
	return nil
}

// Close implements Phy.
func (p *SerialPhy) Close() error {
	p.closeOnce.Do(func() {
		select {
		case <-p.died:
		default:
			close(p.died)
		}
	})
	return nil
}

// ctrl submits a control frame and blocks for its reply or a 3-second
// timeout.
func (p *SerialPhy) ctrl(cmd uint8, data []byte) (uint8, []byte, error) {
	select {
	case <-p.died:
		return 0, nil, errors.New("phy: serial link faulted")
	default:
	}
	req := newControlFrame(cmd, data)
	p.ctrlTX <- req
	tck := time.After(3 * time.Second)
	select {
	case <-p.died:
		return 0, nil, errors.New("phy: serial link faulted")
	case <-req.PendChan:
		return req.Status, req.Reply, nil
	case <-tck:
		return 0, nil, ctrlTimeout("phy: control command timed out")
	}
}

func (p *SerialPhy) dispatchRx() {
	for {
		select {
		case <-p.died:
			return
		case d := <-p.dataRX:
			p.mu.Lock()
			cb := p.rxCallback
			p.mu.Unlock()
			if cb != nil {
				cb(time.Now(), d.Payload, d.Rssi, d.Snr)
			}
		}
	}
}

// run is the transport broker: it owns the registry correlating
// outstanding control requests with their replies and launches the
// reader/writer goroutines.
func (p *SerialPhy) run() {
	ctrlReplies := make(chan controlFrame, 4)
	ctrlWrites := make(chan *controlFrame, 4)

	ctrlRegistry := make(map[uint8]*controlFrame)

	go serialReader(p.port, p.dataRX, ctrlReplies, p.died)
	go serialWriter(p.port, p.dataTX, ctrlWrites, p.died)
	defer p.port.Close()

	for {
		select {
		case <-p.died:
			return
		case rep := <-ctrlReplies:
			if req := ctrlRegistry[rep.Command]; req != nil {
				req.Status = rep.Status
				req.Reply = rep.Reply
				select {
				case <-req.PendChan:
				default:
					close(req.PendChan)
				}
				delete(ctrlRegistry, rep.Command)
			}
		case n := <-p.ctrlTX:
			ctrlRegistry[n.Command] = n
			ctrlWrites <- n
		}
	}
}

// serialReader reassembles data and control-reply frames out of the
// incoming byte stream. Frames with a bad checksum are dropped.
func serialReader(port io.ReadWriteCloser, outData chan<- *dataFrame, ctrlReply chan<- controlFrame, halt chan struct{}) {
	readBuf := make([]byte, 65536)
	frame := make([]byte, 256)
	var framePos, payloadLen int

	fault := func() {
		select {
		case <-halt:
		default:
			close(halt)
		}
	}

	for {
		n, err := port.Read(readBuf)
		if err != nil {
			fault()
			return
		}
		buf := readBuf[:n]
		for len(buf) > 0 {
			b := buf[0]
			if framePos == 0 {
				if b == startData || b == startCtrlResp {
					frame[0] = b
					framePos = 1
					buf = buf[1:]
					continue
				}
			}
			if framePos > 0 {
				if payloadLen == 0 && frame[0] == startData && framePos == 1 {
					payloadLen = 5 + int(b)
				}
				if payloadLen == 0 && frame[0] == startCtrlResp && framePos == 3 {
					payloadLen = 5 + int(b)
				}
				frame[framePos] = b
				framePos++
			}
			if payloadLen > 0 && framePos == payloadLen {
				complete := frame[:framePos]
				cksum := xorBuffer(complete[1 : len(complete)-1])
				if complete[len(complete)-1] == cksum {
					switch complete[0] {
					case startData:
						dataLen := int(complete[1])
						d := &dataFrame{
							Rssi:    int8(complete[2]),
							Snr:     int8(complete[3]),
							Payload: append([]byte(nil), complete[4:4+dataLen]...),
						}
						outData <- d
					case startCtrlResp:
						replLen := int(complete[3])
						reply := append([]byte(nil), complete[4:4+replLen]...)
						ctrlReply <- controlFrame{
							Command: complete[1],
							Status:  complete[2],
							Reply:   reply,
						}
					}
				}
				frame = frame[0:256]
				framePos = 0
				payloadLen = 0
			}
			buf = buf[1:]
		}
	}
}

// serialWriter drains outbound data and control frames to the port. The
// Heymac microcontroller has no host-squelch feature, so no flow control
// is applied here.
func serialWriter(port io.ReadWriteCloser, dataTX <-chan *dataFrame, ctrlTX <-chan *controlFrame, halt chan struct{}) {
	fault := func() {
		select {
		case <-halt:
		default:
			close(halt)
		}
	}
	for {
		select {
		case <-halt:
			return
		case d := <-dataTX:
			if _, err := port.Write(d.serialize()); err != nil {
				log.Printf("phy: serialWriter: write error: %v", err)
				fault()
				return
			}
		case c := <-ctrlTX:
			if _, err := port.Write(c.serialize()); err != nil {
				log.Printf("phy: serialWriter: write error: %v", err)
				fault()
				return
			}
		}
	}
}
