package radar

import (
	"fmt"
	"time"

	"github.com/golang/glog"
)

const (
	// DefaultCommandTimeout is the ACK window for a single command.
	DefaultCommandTimeout = 1 * time.Second
	// DefaultCommandPoll is the pause between pipeline polls while waiting.
	DefaultCommandPoll = 2 * time.Millisecond
)

// Engine sends command frames and waits for their ACKs on the same pipeline
// that carries data reports. Only one command is in flight at a time and the
// engine never retries; see RetryPolicy for that.
type Engine struct {
	// Timeout is used by the typed operations.
	Timeout time.Duration
	// PollInterval is the pause between polls while an ACK is outstanding.
	PollInterval time.Duration
	// ExitConfigMode leaves configuration mode after every command. The
	// sensor stops streaming reports while in configuration mode.
	ExitConfigMode bool

	pipe       *Pipeline
	inConfig   bool
	configInfo *ConfigModeInfo

	now   func() time.Time
	sleep func(time.Duration)
}

// NewEngine creates an Engine on top of p.
func NewEngine(p *Pipeline) *Engine {
	return &Engine{
		Timeout:        DefaultCommandTimeout,
		PollInterval:   DefaultCommandPoll,
		ExitConfigMode: true,
		pipe:           p,
		now:            time.Now,
		sleep:          time.Sleep,
	}
}

// Pipeline returns the pipeline commands run on.
func (e *Engine) Pipeline() *Pipeline { return e.pipe }

// InConfigMode reports whether the engine believes the sensor is in
// configuration mode.
func (e *Engine) InConfigMode() bool { return e.inConfig }

// ConfigModeInfo returns the reply to the last successful enable-config.
func (e *Engine) ConfigModeInfo() *ConfigModeInfo { return e.configInfo }

// SendCommand enters configuration mode if needed, sends code with params,
// and waits up to timeout for the matching ACK. Reports that arrive in the
// meantime are still applied to the state. An unanswered command returns a
// *TimeoutError (errors.Is ErrCommandTimeout).
func (e *Engine) SendCommand(code CommandCode, params []byte, timeout time.Duration) (*AckFrame, error) {
	if timeout <= 0 {
		timeout = e.Timeout
	}

	switch code {
	case CmdEnableConfig:
		return e.enterConfig(params, timeout)
	case CmdEndConfig:
		return e.exitConfig(timeout)
	}

	if !e.inConfig {
		if _, err := e.EnterConfigMode(timeout); err != nil {
			return nil, err
		}
	}

	ack, err := e.exchange(code, params, timeout)

	if code == CmdRestart && err == nil && ack.Success() {
		// The sensor reboots straight into reporting mode.
		e.inConfig = false
		return ack, nil
	}
	if e.ExitConfigMode {
		if err := e.ExitConfig(timeout); err != nil {
			glog.Warningf("[radar] leaving config mode after %s: %v", code, err)
		}
	}
	return ack, err
}

// EnterConfigMode sends enable-config and records the reply.
func (e *Engine) EnterConfigMode(timeout time.Duration) (*ConfigModeInfo, error) {
	ack, err := e.enterConfig(nil, timeout)
	if err != nil {
		return nil, err
	}
	if !ack.Success() {
		return nil, &CommandError{Command: CmdEnableConfig, Status: ack.Status}
	}
	return e.configInfo, nil
}

// ExitConfig sends end-config.
func (e *Engine) ExitConfig(timeout time.Duration) error {
	ack, err := e.exitConfig(timeout)
	if err != nil {
		return err
	}
	if !ack.Success() {
		return &CommandError{Command: CmdEndConfig, Status: ack.Status}
	}
	return nil
}

func (e *Engine) enterConfig(params []byte, timeout time.Duration) (*AckFrame, error) {
	if params == nil {
		params = []byte{byte(configModeEnable), byte(configModeEnable >> 8)}
	}
	ack, err := e.exchange(CmdEnableConfig, params, timeout)
	if err != nil {
		return ack, err
	}
	if ack.Success() {
		e.inConfig = true
		if info, ok := ack.Reply.(*ConfigModeInfo); ok {
			e.configInfo = info
		}
	}
	return ack, nil
}

func (e *Engine) exitConfig(timeout time.Duration) (*AckFrame, error) {
	ack, err := e.exchange(CmdEndConfig, nil, timeout)
	if err != nil {
		return ack, err
	}
	if ack.Success() {
		e.inConfig = false
	}
	return ack, nil
}

// exchange writes one command frame and busy-polls for its ACK.
func (e *Engine) exchange(code CommandCode, params []byte, timeout time.Duration) (*AckFrame, error) {
	frame := (&CommandFrame{Code: code, Params: params}).Bytes()
	if err := e.pipe.Write(frame); err != nil {
		return nil, fmt.Errorf("radar: write %s: %w", code, err)
	}

	deadline := e.now().Add(timeout)
	for {
		var matched *AckFrame
		acks, err := e.pipe.Poll()
		for _, ack := range acks {
			if matched != nil {
				glog.V(1).Infof("[radar] ignoring ack for %s after %s was answered", ack.Command, code)
				continue
			}
			if ack.Command == code {
				matched = ack
				continue
			}
			glog.V(1).Infof("[radar] ignoring ack for %s while waiting for %s", ack.Command, code)
		}
		if matched != nil {
			return matched, matched.ReplyErr()
		}
		if err != nil {
			return nil, fmt.Errorf("radar: read while waiting for %s: %w", code, err)
		}
		if !e.now().Before(deadline) {
			return nil, &TimeoutError{Command: code}
		}
		e.sleep(e.PollInterval)
	}
}

// do runs a command and turns a failure status into a *CommandError.
func (e *Engine) do(code CommandCode, params []byte) (*AckFrame, error) {
	ack, err := e.SendCommand(code, params, e.Timeout)
	if err != nil {
		return nil, err
	}
	if !ack.Success() {
		return nil, &CommandError{Command: code, Status: ack.Status}
	}
	return ack, nil
}

// ReadFirmwareVersion queries the firmware version and stores it in the state.
func (e *Engine) ReadFirmwareVersion() (*FirmwareVersion, error) {
	ack, err := e.do(CmdReadFirmware, nil)
	if err != nil {
		return nil, err
	}
	v, ok := ack.Reply.(*FirmwareVersion)
	if !ok {
		return nil, &UnsupportedReplyError{Command: CmdReadFirmware, Length: len(ack.Data), Reason: "no version"}
	}
	e.pipe.State().ApplyFirmware(*v)
	return v, nil
}

// ReadConfiguration reads gate limits and sensitivities and stores them in
// the state.
func (e *Engine) ReadConfiguration() (*SensorConfiguration, error) {
	ack, err := e.do(CmdReadConfig, nil)
	if err != nil {
		return nil, err
	}
	c, ok := ack.Reply.(*SensorConfiguration)
	if !ok {
		return nil, &UnsupportedReplyError{Command: CmdReadConfig, Length: len(ack.Data), Reason: "no configuration"}
	}
	e.pipe.State().ApplyConfiguration(*c)
	return c, nil
}

// SetEngineeringMode turns per-gate engineering reports on or off.
func (e *Engine) SetEngineeringMode(on bool) error {
	code := CmdDisableEngineering
	if on {
		code = CmdEnableEngineering
	}
	if _, err := e.do(code, nil); err != nil {
		return err
	}
	if !on {
		e.pipe.State().ApplyEngineering(nil)
	}
	return nil
}

// SetMaxGates sets the farthest moving and stationary detection gates and the
// no-one idle timeout.
func (e *Engine) SetMaxGates(moving, stationary uint8, idleSeconds uint16) error {
	if moving > MaxGate || stationary > MaxGate {
		return fmt.Errorf("radar: max gates %d/%d exceed %d", moving, stationary, MaxGate)
	}
	params := paramWords(
		uint32(paramMaxMovingGate), uint32(moving),
		uint32(paramMaxStationaryGate), uint32(stationary),
		uint32(paramIdleTimeout), uint32(idleSeconds),
	)
	_, err := e.do(CmdSetMaxValues, params)
	return err
}

// SetGateSensitivity sets the motion and stationary thresholds of one gate,
// or of every gate when gate is -1.
func (e *Engine) SetGateSensitivity(gate int, motion, stationary uint8) error {
	if gate < -1 || gate > MaxGate {
		return fmt.Errorf("radar: gate %d outside -1..%d", gate, MaxGate)
	}
	if motion > 100 || stationary > 100 {
		return fmt.Errorf("radar: sensitivity %d/%d exceeds 100", motion, stationary)
	}
	g := allGates
	if gate >= 0 {
		g = uint32(gate)
	}
	params := paramWords(
		uint32(paramGate), g,
		uint32(paramMotionSens), uint32(motion),
		uint32(paramStaticSens), uint32(stationary),
	)
	_, err := e.do(CmdSetSensitivity, params)
	return err
}

// SetBaudRate selects a new line rate by index (see BaudRates). It takes
// effect after Restart.
func (e *Engine) SetBaudRate(index uint16) error {
	if _, ok := BaudRates[index]; !ok {
		return fmt.Errorf("radar: unknown baud rate index %d", index)
	}
	_, err := e.do(CmdSetBaudRate, []byte{byte(index), byte(index >> 8)})
	return err
}

// FactoryReset restores the sensor defaults. It takes effect after Restart.
func (e *Engine) FactoryReset() error {
	_, err := e.do(CmdFactoryReset, nil)
	return err
}

// Restart reboots the sensor.
func (e *Engine) Restart() error {
	_, err := e.do(CmdRestart, nil)
	return err
}
