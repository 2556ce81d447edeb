// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package controlmode packs control mode descriptors into 8-bit codes and
// compares codes under bit masks.
//
// Code layout:
//
//	bits [7:4]  control mode class (UNSET, HOVER, ACRO, ... TRAJECTORY)
//	bits [3:2]  yaw mode
//	bits [1:0]  reference frame
//
// Classes are ordered by level: a higher class can always be converted into
// a lower one by a controller, never the other way round.
package controlmode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Control mode classes as carried in Mode.ControlMode.
const (
	Unset         uint8 = 0
	Hover         uint8 = 1
	Acro          uint8 = 2
	Attitude      uint8 = 3
	Speed         uint8 = 4
	SpeedInAPlane uint8 = 5
	Position      uint8 = 6
	Trajectory    uint8 = 7
)

// Yaw modes as carried in Mode.YawMode.
const (
	YawNone  uint8 = 0
	YawAngle uint8 = 1
	YawSpeed uint8 = 2
)

// Reference frames as carried in Mode.ReferenceFrame.
const (
	FrameUndefined       uint8 = 0
	FrameLocalENU        uint8 = 1
	FrameBodyFLU         uint8 = 2
	FrameGlobalLatLonASL uint8 = 3
)

// Mode is the structured control mode descriptor exchanged on the wire.
type Mode struct {
	ControlMode    uint8 `json:"control_mode" yaml:"control_mode"`
	YawMode        uint8 `json:"yaw_mode" yaml:"yaw_mode"`
	ReferenceFrame uint8 `json:"reference_frame" yaml:"reference_frame"`
}

// Code is the packed 8-bit form of a Mode.
type Code uint8

// Reserved codes.
const (
	CodeUnset Code = 0x00
	CodeHover Code = 0x10
)

var controlModeNames = []string{"UNSET", "HOVER", "ACRO", "ATTITUDE", "SPEED", "SPEED_IN_A_PLANE", "POSITION", "TRAJECTORY"}
var yawModeNames = []string{"NONE", "YAW_ANGLE", "YAW_SPEED"}
var frameNames = []string{"UNDEFINED_FRAME", "LOCAL_ENU", "BODY_FLU", "GLOBAL_LAT_LON_ASL"}

// Encode packs m. Out-of-range fields are truncated to their bit width.
func Encode(m Mode) Code {
	return Code((m.ControlMode&0x0F)<<4 | (m.YawMode&0x03)<<2 | m.ReferenceFrame&0x03)
}

// Decode unpacks c into a Mode.
func Decode(c Code) Mode {
	return Mode{
		ControlMode:    uint8(c) >> 4,
		YawMode:        (uint8(c) >> 2) & 0x03,
		ReferenceFrame: uint8(c) & 0x03,
	}
}

// Code returns the packed form of m.
func (m Mode) Code() Code {
	return Encode(m)
}

// IsHover reports whether m requests hovering, whatever its qualifiers.
func (m Mode) IsHover() bool {
	return m.ControlMode == Hover
}

func (m Mode) String() string {
	if m.ControlMode == Unset || m.ControlMode == Hover {
		return nameOf(controlModeNames, m.ControlMode)
	}
	return fmt.Sprintf("%s|%s|%s",
		nameOf(controlModeNames, m.ControlMode),
		nameOf(yawModeNames, m.YawMode),
		nameOf(frameNames, m.ReferenceFrame),
	)
}

func (c Code) String() string {
	return fmt.Sprintf("0x%02X(%s)", uint8(c), Decode(c))
}

// MarshalJSON encodes c as a number so code lists stay JSON arrays instead of
// base64 byte strings.
func (c Code) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(c))), nil
}

func (c *Code) UnmarshalJSON(b []byte) error {
	var v uint8
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("control mode code: %w", err)
	}
	*c = Code(v)
	return nil
}

func nameOf(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return fmt.Sprintf("UNKNOWN(%d)", v)
}

// ParseMode builds a Mode from its textual field names, e.g.
// ParseMode("position", "yaw_angle", "local_enu"). Yaw and frame may be empty.
func ParseMode(control, yaw, frame string) (Mode, error) {
	var m Mode
	var err error
	if m.ControlMode, err = lookup(controlModeNames, control, "control mode"); err != nil {
		return Mode{}, err
	}
	if yaw != "" {
		if m.YawMode, err = lookup(yawModeNames, yaw, "yaw mode"); err != nil {
			return Mode{}, err
		}
	}
	if frame != "" {
		if m.ReferenceFrame, err = lookup(frameNames, frame, "reference frame"); err != nil {
			return Mode{}, err
		}
	}
	return m, nil
}

func lookup(names []string, s, what string) (uint8, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range names {
		if n == key {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, s)
}
