package video

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func fakeJpeg(payload string) []byte {
	out := append([]byte{}, jpegSOI...)
	out = append(out, payload...)
	return append(out, jpegEOI...)
}

func TestSplitJpeg(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		atEOF     bool
		wantAdv   int
		wantToken []byte
	}{
		{"empty at EOF", nil, true, 0, nil},
		{"no SOI yet", []byte{0x00, 0x01}, false, 0, nil},
		{"no SOI at EOF skips garbage", []byte{0x00, 0x01}, true, 2, nil},
		{"incomplete frame", append([]byte{}, jpegSOI...), false, 0, nil},
		{"complete frame", fakeJpeg("ab"), false, 6, fakeJpeg("ab")},
		{"leading garbage", append([]byte{0x42}, fakeJpeg("x")...), false, 6, fakeJpeg("x")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			adv, token, err := SplitJpeg(tc.data, tc.atEOF)
			require.NoError(t, err)
			require.Equal(t, tc.wantAdv, adv)
			require.Equal(t, tc.wantToken, token)
		})
	}
}

func TestFrameScanner_SplitsStream(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(fakeJpeg("one"))
	stream.Write(fakeJpeg("two"))
	stream.Write(fakeJpeg("three"))
	stream.Write(jpegSOI) // truncated trailing frame

	scanner := newFrameScanner(&stream)
	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, bytes.Clone(scanner.Bytes()))
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, [][]byte{fakeJpeg("one"), fakeJpeg("two"), fakeJpeg("three")}, frames)
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"25", 25},
		{"30000/1001", 30000.0 / 1001.0},
		{"0/0", 0},
		{"N/A", 0},
		{"", 0},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			require.InDelta(t, tc.want, parseFrameRate(tc.in), 1e-9)
		})
	}
}

func TestParseProbeOutput(t *testing.T) {
	t.Run("with frame count", func(t *testing.T) {
		info, err := parseProbeOutput([]byte(`{"streams":[{"avg_frame_rate":"30/1","r_frame_rate":"30/1","nb_frames":"150"}]}`))
		require.NoError(t, err)
		require.Equal(t, Info{FPS: 30, TotalFrames: 150}, info)
	})

	t.Run("missing frame count", func(t *testing.T) {
		info, err := parseProbeOutput([]byte(`{"streams":[{"avg_frame_rate":"0/0","r_frame_rate":"25/1","nb_frames":"N/A"}]}`))
		require.NoError(t, err)
		require.Equal(t, Info{FPS: 25}, info)
	})

	t.Run("no video stream", func(t *testing.T) {
		_, err := parseProbeOutput([]byte(`{"streams":[]}`))
		require.Error(t, err)
	})

	t.Run("no frame rate", func(t *testing.T) {
		_, err := parseProbeOutput([]byte(`{"streams":[{"avg_frame_rate":"0/0","r_frame_rate":"0/0"}]}`))
		require.Error(t, err)
	})
}
