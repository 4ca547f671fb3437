package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap/zapcore"
)

const testYaml = `
serial:
  device: /dev/ttyUSB3
  baud: 9600
  read_timeout_ms: 20
listen: 0.0.0.0:9000
request_timeout: 500ms
log_level: debug
`

func TestConfigParsing(t *testing.T) {
	Convey("defaults are valid", t, func() {
		cfg, err := Parse(nil)
		So(err, ShouldBeNil)
		So(cfg.Serial.Device, ShouldEqual, "/dev/ttyACM0")
		So(cfg.RequestTimeout, ShouldEqual, 2*time.Second)

		level, err := cfg.Level()
		So(err, ShouldBeNil)
		So(level, ShouldEqual, zapcore.InfoLevel)
	})

	Convey("yaml overrides the defaults", t, func() {
		cfg, err := Parse([]byte(testYaml))
		So(err, ShouldBeNil)
		So(cfg.Serial.Device, ShouldEqual, "/dev/ttyUSB3")
		So(cfg.Serial.Baud, ShouldEqual, 9600)
		So(cfg.Serial.ReadTimeout, ShouldEqual, 20)
		So(cfg.Listen, ShouldEqual, "0.0.0.0:9000")
		So(cfg.RequestTimeout, ShouldEqual, 500*time.Millisecond)

		Convey("unset keys keep their defaults", func() {
			So(cfg.SimInterval, ShouldEqual, time.Millisecond)
			So(cfg.Simulate, ShouldBeFalse)
		})
	})

	Convey("unknown keys are rejected", t, func() {
		_, err := Parse([]byte("speed: 20\n"))
		So(err, ShouldNotBeNil)
	})

	Convey("invalid values are rejected", t, func() {
		_, err := Parse([]byte("log_level: loud\n"))
		So(err, ShouldNotBeNil)

		_, err = Parse([]byte("request_timeout: 0s\n"))
		So(err, ShouldNotBeNil)

		_, err = Parse([]byte("serial:\n  device: \"\"\n"))
		So(err, ShouldNotBeNil)

		Convey("but an empty device is fine when simulating", func() {
			cfg, err := Parse([]byte("simulate: true\nserial:\n  device: \"\"\n"))
			So(err, ShouldBeNil)
			So(cfg.Simulate, ShouldBeTrue)
		})
	})
}

func TestConfigEnvironment(t *testing.T) {
	t.Setenv("COILSTEP_DEVICE", "/dev/ttyACM7")
	t.Setenv("COILSTEP_LISTEN", ":7000")
	t.Setenv("COILSTEP_REQUEST_TIMEOUT", "3s")
	t.Setenv("COILSTEP_SIMULATE", "true")

	Convey("environment wins over yaml", t, func() {
		cfg, err := Parse([]byte(testYaml))
		So(err, ShouldBeNil)
		So(cfg.Serial.Device, ShouldEqual, "/dev/ttyACM7")
		So(cfg.Listen, ShouldEqual, ":7000")
		So(cfg.RequestTimeout, ShouldEqual, 3*time.Second)
		So(cfg.Simulate, ShouldBeTrue)

		Convey("yaml values without an override survive", func() {
			So(cfg.Serial.Baud, ShouldEqual, 9600)
		})
	})
}

func TestConfigLoad(t *testing.T) {
	Convey("loading from a file", t, func() {
		path := filepath.Join(t.TempDir(), "coilstep.yaml")
		So(os.WriteFile(path, []byte(testYaml), 0o644), ShouldBeNil)

		cfg, err := Load(path)
		So(err, ShouldBeNil)
		So(cfg.Serial.Device, ShouldEqual, "/dev/ttyUSB3")

		Convey("marshalled config parses back", func() {
			data, err := cfg.Marshal()
			So(err, ShouldBeNil)
			back, err := Parse(data)
			So(err, ShouldBeNil)
			So(back, ShouldResemble, cfg)
		})
	})

	Convey("a missing file is an error", t, func() {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		So(err, ShouldNotBeNil)
	})

	Convey("no path means defaults", t, func() {
		cfg, err := Load("")
		So(err, ShouldBeNil)
		So(cfg.Listen, ShouldEqual, "127.0.0.1:8080")
	})
}
