// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestEncodeResponse_Vectors(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		response Response
	}{
		{"settings v1.0", frameSettingsV10, Settings{Version: Version10, Frequency: 5865, UserFrequencyMode: true}},
		{"settings v2.0", frameSettingsV20, Settings{
			Version: Version20, Channel: 1, Frequency: 5865,
			Unlocked: true, PitmodeEnabled: true, PitmodeOutRangeActive: true,
		}},
		{"settings v2.1", frameSettingsV21, Settings{
			Version: Version21, Frequency: 5865,
			PowerSettings: &PowerSettings{CurrentPower: 14, NumPowerLevels: 3, DBmLevels: [4]uint8{0, 14, 20, 26}},
		}},
		{"set power", frameSetPower14, SetPowerResponse{Power: 14}},
		{"set channel", frameSetChannel, SetChannelResponse{}},
		{"set frequency", frameSetFrequency, SetFrequencyResponse{Frequency: 5865}},
		{"set mode", frameSetMode, SetModeResponse{PitmodeOutRangeActive: true, Unlocked: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeResponse(tt.response)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(got, tt.frame) {
				t.Errorf("encoding mismatch:\n got: %s\nwant: %s", FormatHex(got), FormatHex(tt.frame))
			}
		})
	}
}

func TestEncodeResponse_RoundTrip(t *testing.T) {
	responses := []Response{
		Settings{Version: Version20, Channel: 33, PowerLevel: 2, Frequency: 5732, PitmodeInRangeActive: true},
		Settings{Version: Version21, Channel: 7, Frequency: 5725, Unlocked: true,
			PowerSettings: &PowerSettings{CurrentPower: 20, NumPowerLevels: 4, DBmLevels: [4]uint8{14, 20, 23, 26}}},
		SetPowerResponse{Power: 2},
		SetChannelResponse{Channel: 39},
		SetFrequencyResponse{Frequency: 5917},
		SetModeResponse{PitmodeInRangeActive: true, PitmodeEnabled: true},
	}

	p := NewParser()
	for _, want := range responses {
		data, err := EncodeResponse(want)
		if err != nil {
			t.Fatalf("%#v: unexpected error: %v", want, err)
		}
		got := pushAll(t, p, data)
		if len(got) != 1 || !reflect.DeepEqual(got[0], want) {
			t.Errorf("round trip mismatch:\n got: %#v\nwant: %#v", got, want)
		}
	}
}

func TestMarshalResponseTo_Errors(t *testing.T) {
	if _, err := EncodeResponse(Settings{}); err == nil {
		t.Error("expected error for settings without version")
	}

	buf := make([]byte, 6)
	_, err := MarshalResponseTo(SetPowerResponse{Power: 1}, buf)
	var tooSmall *BufferTooSmallError
	if !errors.As(err, &tooSmall) || tooSmall.Required != 7 {
		t.Errorf("expected BufferTooSmallError requiring 7 bytes, got %v", err)
	}
}
