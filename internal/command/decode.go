package command

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/logic/coupling"
)

var (
	// ErrUnknownAddress is returned for addresses no command answers to.
	// Callers treat it as a no-op.
	ErrUnknownAddress = errors.New("unknown address")
	// ErrMalformed is returned for undecodable packets and for arguments of
	// the wrong type or count.
	ErrMalformed = errors.New("malformed command")
)

// maxDurationSeconds bounds the optional move duration argument.
const maxDurationSeconds = 24 * 60 * 60

// maxExactInt is the largest integer a float64 argument represents exactly.
const maxExactInt = 1 << 53

// DecodePacket parses one datagram. Bundles are flattened in order. Messages
// that fail to decode are skipped and their errors joined, so one bad
// message does not drop the rest of a bundle.
func DecodePacket(b []byte) (cmds []Command, err error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty packet", ErrMalformed)
	}
	defer func() {
		if r := recover(); r != nil {
			cmds, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	pkt, perr := osc.ParsePacket(string(b))
	if perr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, perr)
	}
	var errs []error
	walk(pkt, func(m *osc.Message) {
		c, derr := Decode(m.Address, m.Arguments)
		if derr != nil {
			errs = append(errs, derr)
			return
		}
		cmds = append(cmds, c)
	})
	return cmds, errors.Join(errs...)
}

func walk(p osc.Packet, fn func(*osc.Message)) {
	switch p := p.(type) {
	case *osc.Message:
		fn(p)
	case *osc.Bundle:
		for _, m := range p.Messages {
			fn(m)
		}
		for _, b := range p.Bundles {
			walk(b, fn)
		}
	}
}

// Decode maps an address and its argument list to a command. The leading
// "/" of the address is optional. Numeric arguments may be sent as int or
// float; out-of-domain values are passed through and clamped where they are
// applied.
func Decode(addr string, args []interface{}) (Command, error) {
	addr = strings.TrimPrefix(addr, "/")
	c, err := decode(addr, args)
	switch {
	case errors.Is(err, ErrMalformed):
		return nil, fmt.Errorf("/%s: %w", addr, err)
	case err != nil:
		return nil, err
	}
	return c, nil
}

func decode(addr string, args []interface{}) (Command, error) {
	switch addr {
	case "pan":
		v, err := number(args, 0)
		return JogPan{Value: v}, err
	case "tilt":
		v, err := number(args, 0)
		return JogTilt{Value: v}, err
	case "joy/pt":
		p, err := number(args, 0)
		if err != nil {
			return nil, err
		}
		t, err := number(args, 1)
		return JogPanTilt{Pan: p, Tilt: t}, err
	case "slide/jog":
		v, err := number(args, 0)
		return JogSlide{Value: v}, err
	case "joy/config":
		return joystickConfig(args)
	case "axis_pan", "axis_tilt", "axis_zoom", "axis_slide":
		a, err := axis.Parse(strings.TrimPrefix(addr, "axis_"))
		if err != nil {
			return nil, err
		}
		u, err := number(args, 0)
		return AxisAbsolute{Axis: a, Fraction: u}, err
	case "preset/set":
		return presetSet(args)
	case "preset/recall":
		i, err := index(args, 0)
		if err != nil {
			return nil, err
		}
		d, err := duration(args, 1)
		return PresetRecall{Index: i, Duration: d}, err
	case "slide/goto":
		u, err := number(args, 0)
		if err != nil {
			return nil, err
		}
		d, err := duration(args, 1)
		return SlideGoto{Position: u, Duration: d}, err
	case "config/offset_range":
		p, t, err := pair(args)
		return OffsetRange{Pan: p, Tilt: t}, err
	case "config/pan_map":
		lo, hi, err := pair(args)
		return PanMap{Map: coupling.Map{AtMin: lo, AtMax: hi}}, err
	case "config/tilt_map":
		lo, hi, err := pair(args)
		return TiltMap{Map: coupling.Map{AtMin: lo, AtMax: hi}}, err
	case "stop":
		return Stop{}, nil
	case "reset_offsets":
		return ResetOffsets{}, nil
	case "reset_all_axes":
		return ResetAllAxes{}, nil
	}
	return nil, fmt.Errorf("%w: /%s", ErrUnknownAddress, addr)
}

func joystickConfig(args []interface{}) (Command, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no settings", ErrMalformed)
	}
	n := len(args)
	if n > 4 {
		n = 4
	}
	vals := make([]float64, n)
	for i := range vals {
		v, err := number(args, i)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return JoystickConfig{Values: vals}, nil
}

func presetSet(args []interface{}) (Command, error) {
	i, err := index(args, 0)
	if err != nil {
		return nil, err
	}
	var goal axis.Vector
	for _, a := range axis.All {
		if goal[a], err = integer(args, 1+int(a)); err != nil {
			return nil, err
		}
	}
	return PresetSet{Index: i, Goal: goal}, nil
}

func pair(args []interface{}) (int64, int64, error) {
	a, err := integer(args, 0)
	if err != nil {
		return 0, 0, err
	}
	b, err := integer(args, 1)
	return a, b, err
}

func number(args []interface{}, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrMalformed, i)
	}
	var f float64
	switch v := args[i].(type) {
	case float32:
		f = float64(v)
	case float64:
		f = v
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, fmt.Errorf("%w: argument %d has type %T", ErrMalformed, i, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: argument %d is %v", ErrMalformed, i, f)
	}
	return f, nil
}

func integer(args []interface{}, i int) (int64, error) {
	if i < len(args) {
		if v, ok := args[i].(int64); ok {
			return v, nil
		}
	}
	f, err := number(args, i)
	if err != nil {
		return 0, err
	}
	if math.Abs(f) > maxExactInt {
		return 0, fmt.Errorf("%w: argument %d out of range", ErrMalformed, i)
	}
	return axis.Round(f), nil
}

// index reads a preset slot number. Float arguments must hold a whole
// number.
func index(args []interface{}, i int) (int, error) {
	n, err := integer(args, i)
	if err != nil {
		return 0, err
	}
	if f, err := number(args, i); err == nil && f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: index %v is not a whole number", ErrMalformed, f)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: index %d out of range", ErrMalformed, n)
	}
	return int(n), nil
}

// duration reads an optional duration in seconds. Missing or non-positive
// values yield 0.
func duration(args []interface{}, i int) (time.Duration, error) {
	if i >= len(args) {
		return 0, nil
	}
	sec, err := number(args, i)
	if err != nil {
		return 0, err
	}
	if sec <= 0 {
		return 0, nil
	}
	if sec > maxDurationSeconds {
		return 0, fmt.Errorf("%w: duration %.0fs too long", ErrMalformed, sec)
	}
	return time.Duration(sec * float64(time.Second)), nil
}
