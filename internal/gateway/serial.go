package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"
)

// SerialOptions locates the sensor bridge.
type SerialOptions struct {
	Device string
	Baud   int
}

// request is one newline-terminated JSON frame sent to the bridge.
type request struct {
	Op      string `json:"op"`
	Channel uint8  `json:"ch,omitempty"`
	High    bool   `json:"high,omitempty"`
}

// response is the bridge's answer. Misread floats arrive as null.
type response struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Raw      int      `json:"raw,omitempty"`
	Level    bool     `json:"level,omitempty"`
	Temp     *float64 `json:"temp,omitempty"`
	Humidity *float64 `json:"humidity,omitempty"`
}

// Serial forwards every gateway call to a sensor bridge microcontroller over a
// serial line, one request and one response frame per call.
type Serial struct {
	rwc    io.ReadWriteCloser
	r      *bufio.Reader
	logger *zap.SugaredLogger
}

// NewSerial opens the bridge's serial port. It does not retry; a missing
// bridge is reported to the caller.
func NewSerial(opts SerialOptions, logger *zap.SugaredLogger) (*Serial, error) {
	if opts.Device == "" {
		return nil, fmt.Errorf("serial gateway requires a device path")
	}
	if opts.Baud == 0 {
		opts.Baud = 115200
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	sc := &serial.Config{Name: opts.Device, Baud: opts.Baud}
	logger.Debugf("opening sensor bridge %s at %d baud", opts.Device, opts.Baud)
	rwc, err := serial.OpenPort(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", opts.Device, err)
	}
	return NewSerialConn(rwc, logger), nil
}

// NewSerialConn wraps an already open bridge connection.
func NewSerialConn(rwc io.ReadWriteCloser, logger *zap.SugaredLogger) *Serial {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Serial{rwc: rwc, r: bufio.NewReader(rwc), logger: logger}
}

func (s *Serial) roundTrip(req request) (response, error) {
	frame, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("encode %s request: %w", req.Op, err)
	}
	frame = append(frame, '\n')
	if _, err := s.rwc.Write(frame); err != nil {
		return response{}, fmt.Errorf("write %s request: %w", req.Op, err)
	}

	line, err := s.r.ReadBytes('\n')
	if err != nil {
		return response{}, fmt.Errorf("read %s response: %w", req.Op, err)
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return response{}, fmt.Errorf("decode %s response %q: %w", req.Op, line, err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("bridge %s failed: %s", req.Op, resp.Error)
	}
	return resp, nil
}

func (s *Serial) ReadAnalog(ch Channel) (int, error) {
	resp, err := s.roundTrip(request{Op: "analog", Channel: uint8(ch)})
	if err != nil {
		s.logger.Debugw("analog read failed", "channel", ch.String(), "error", err)
		return 0, err
	}
	return resp.Raw, nil
}

func (s *Serial) ReadDigital(ch Channel) (bool, error) {
	resp, err := s.roundTrip(request{Op: "digital", Channel: uint8(ch)})
	if err != nil {
		s.logger.Debugw("digital read failed", "channel", ch.String(), "error", err)
		return false, err
	}
	return resp.Level, nil
}

func (s *Serial) WriteDigital(ch Channel, high bool) error {
	_, err := s.roundTrip(request{Op: "write", Channel: uint8(ch), High: high})
	return err
}

func (s *Serial) ReadTemperatureHumidity() (float64, float64, error) {
	resp, err := s.roundTrip(request{Op: "air"})
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	return orNaN(resp.Temp), orNaN(resp.Humidity), nil
}

func (s *Serial) ReadOneWireTemperature() (float64, error) {
	resp, err := s.roundTrip(request{Op: "onewire"})
	if err != nil {
		return math.NaN(), err
	}
	return orNaN(resp.Temp), nil
}

// Close releases the serial port.
func (s *Serial) Close() error {
	return s.rwc.Close()
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
