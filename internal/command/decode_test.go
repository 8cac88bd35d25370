package command

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/logic/coupling"
)

func TestDecode_Table(t *testing.T) {
	cases := []struct {
		addr string
		args []interface{}
		want Command
	}{
		{"/pan", []interface{}{float32(0.5)}, JogPan{Value: 0.5}},
		{"tilt", []interface{}{float32(-0.25)}, JogTilt{Value: -0.25}},
		{"/joy/pt", []interface{}{float32(1), int32(-1)}, JogPanTilt{Pan: 1, Tilt: -1}},
		{"/slide/jog", []interface{}{float64(0.75)}, JogSlide{Value: 0.75}},
		{"/joy/config", []interface{}{float32(0.25), float32(0.5)}, JoystickConfig{Values: []float64{0.25, 0.5}}},
		{"/axis_zoom", []interface{}{float32(0.5)}, AxisAbsolute{Axis: axis.Zoom, Fraction: 0.5}},
		{"/axis_slide", []interface{}{int32(1)}, AxisAbsolute{Axis: axis.Slide, Fraction: 1}},
		{"/preset/set", []interface{}{int32(2), int32(1000), int32(-1000), int32(2000), int32(4000)},
			PresetSet{Index: 2, Goal: axis.Vector{1000, -1000, 2000, 4000}}},
		{"/preset/recall", []interface{}{int32(3), float32(1.5)}, PresetRecall{Index: 3, Duration: 1500 * time.Millisecond}},
		{"/preset/recall", []interface{}{int32(3)}, PresetRecall{Index: 3}},
		{"/preset/recall", []interface{}{float32(1), float32(-4)}, PresetRecall{Index: 1}},
		{"/slide/goto", []interface{}{float32(0.25), int32(3)}, SlideGoto{Position: 0.25, Duration: 3 * time.Second}},
		{"/config/offset_range", []interface{}{int32(800), int32(600)}, OffsetRange{Pan: 800, Tilt: 600}},
		{"/config/pan_map", []interface{}{int32(800), int32(-800)}, PanMap{Map: coupling.Map{AtMin: 800, AtMax: -800}}},
		{"/config/tilt_map", []interface{}{float32(-100.4), int64(100)}, TiltMap{Map: coupling.Map{AtMin: -100, AtMax: 100}}},
		{"/stop", nil, Stop{}},
		{"reset_offsets", nil, ResetOffsets{}},
		{"/reset_all_axes", nil, ResetAllAxes{}},
	}
	for _, tc := range cases {
		got, err := Decode(tc.addr, tc.args)
		if err != nil {
			t.Errorf("Decode(%s, %v): %v", tc.addr, tc.args, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Decode(%s, %v) = %#v, want %#v", tc.addr, tc.args, got, tc.want)
		}
	}
}

func TestDecode_JoystickConfigKeepsFirstFour(t *testing.T) {
	args := []interface{}{float32(0.1), float32(0.2), float32(300), float32(40), float32(99)}
	got, err := Decode("/joy/config", args)
	if err != nil {
		t.Fatal(err)
	}
	want := JoystickConfig{Values: []float64{float64(float32(0.1)), float64(float32(0.2)), 300, 40}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestDecode_Malformed(t *testing.T) {
	cases := []struct {
		addr string
		args []interface{}
	}{
		{"/pan", nil},
		{"/pan", []interface{}{"left"}},
		{"/joy/pt", []interface{}{float32(0.5)}},
		{"/joy/config", nil},
		{"/preset/set", []interface{}{int32(1), int32(2), int32(3)}},
		{"/preset/recall", nil},
		{"/preset/recall", []interface{}{float32(0.6)}},
		{"/preset/set", []interface{}{float64(1.5), int32(0), int32(0), int32(0), int32(0)}},
		{"/preset/recall", []interface{}{int32(1), float32(1e9)}},
		{"/preset/recall", []interface{}{int64(1 << 40)}},
		{"/config/pan_map", []interface{}{int32(1)}},
		{"/config/offset_range", []interface{}{float64(1e300), int32(1)}},
		{"/axis_pan", []interface{}{true}},
	}
	for _, tc := range cases {
		got, err := Decode(tc.addr, tc.args)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%s, %v) error = %v, want ErrMalformed", tc.addr, tc.args, err)
		}
		if got != nil {
			t.Errorf("Decode(%s, %v) returned %#v with an error", tc.addr, tc.args, got)
		}
	}
}

func TestDecode_UnknownAddress(t *testing.T) {
	for _, addr := range []string{"/zoom", "/axis_focus", "/preset", ""} {
		_, err := Decode(addr, []interface{}{float32(1)})
		if !errors.Is(err, ErrUnknownAddress) {
			t.Errorf("Decode(%q) error = %v, want ErrUnknownAddress", addr, err)
		}
	}
}

func TestDecodePacket_Message(t *testing.T) {
	b, err := osc.NewMessage("/joy/pt", float32(0.5), float32(-0.5)).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	cmds, err := DecodePacket(b)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	want := []Command{JogPanTilt{Pan: 0.5, Tilt: -0.5}}
	if !reflect.DeepEqual(cmds, want) {
		t.Errorf("got %#v, want %#v", cmds, want)
	}
}

func TestDecodePacket_BundleKeepsGoodMessages(t *testing.T) {
	bundle := osc.NewBundle(time.Now())
	for _, m := range []*osc.Message{
		osc.NewMessage("/pan", float32(0.25)),
		osc.NewMessage("/preset/set", int32(1)),
		osc.NewMessage("/slide/jog", float32(-1)),
		osc.NewMessage("/unknown"),
	} {
		if err := bundle.Append(m); err != nil {
			t.Fatal(err)
		}
	}
	b, err := bundle.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	cmds, err := DecodePacket(b)
	want := []Command{JogPan{Value: 0.25}, JogSlide{Value: -1}}
	if !reflect.DeepEqual(cmds, want) {
		t.Errorf("commands = %#v, want %#v", cmds, want)
	}
	if !errors.Is(err, ErrMalformed) || !errors.Is(err, ErrUnknownAddress) {
		t.Errorf("error = %v, want both ErrMalformed and ErrUnknownAddress", err)
	}
}

func TestDecodePacket_Garbage(t *testing.T) {
	for _, b := range [][]byte{nil, {0x00}, []byte("hello")} {
		cmds, err := DecodePacket(b)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodePacket(%q) error = %v, want ErrMalformed", b, err)
		}
		if len(cmds) != 0 {
			t.Errorf("DecodePacket(%q) = %v", b, cmds)
		}
	}
}
