package core

import "coilstep/protocol"

// DataOutMessage is the fixed reply of the data_out command.
// The reply carries the trailing NUL as well.
const DataOutMessage = "Message from the USB device, maximum size is 255 bytes. Undefined array of characters"

// registerMotorCommands installs the standard command table
func registerMotorCommands(d *Dispatcher) {
	d.Register(CmdStop, "de-energize the coils", handleStop)
	d.Register(CmdInit, "return to idle", handleInit)
	d.Register(CmdStepForward, "one step forward", handleStepForward)
	d.Register(CmdStepBackward, "one step backward", handleStepBackward)
	d.Register(CmdRotateForward, "one revolution forward", handleRotateForward)
	d.Register(CmdRotateBackward, "one revolution backward", handleRotateBackward)
	d.Register(CmdStepsParam, "echo the parameter as 5 digits", handleStepsParam)
	d.Register(CmdSpeedUp, "increase the speed modifier", handleSpeedUp)
	d.Register(CmdSpeedDown, "decrease the speed modifier", handleSpeedDown)
	d.Register(CmdDataOut, "read the device message", handleDataOut)
	d.Register(CmdSpeedQuery, "read the speed modifier as 3 digits", handleSpeedQuery)
}

func handleStop(m *Motor, _ protocol.Request, reply []byte) []byte {
	m.Stop()
	return reply
}

func handleInit(m *Motor, _ protocol.Request, reply []byte) []byte {
	m.Init()
	return reply
}

func handleStepForward(m *Motor, _ protocol.Request, reply []byte) []byte {
	m.Move(true, 1)
	return reply
}

func handleStepBackward(m *Motor, _ protocol.Request, reply []byte) []byte {
	m.Move(false, 1)
	return reply
}

func handleRotateForward(m *Motor, _ protocol.Request, reply []byte) []byte {
	m.Move(true, RotationSteps)
	return reply
}

func handleRotateBackward(m *Motor, _ protocol.Request, reply []byte) []byte {
	m.Move(false, RotationSteps)
	return reply
}

// handleStepsParam replies with the embedded parameter; the motor is untouched
func handleStepsParam(_ *Motor, req protocol.Request, reply []byte) []byte {
	digits := EncodeFixedWidth5(req.Value)
	return append(reply, digits[:]...)
}

func handleSpeedUp(m *Motor, _ protocol.Request, reply []byte) []byte {
	m.SpeedUp()
	return reply
}

func handleSpeedDown(m *Motor, _ protocol.Request, reply []byte) []byte {
	m.SpeedDown()
	return reply
}

func handleDataOut(_ *Motor, _ protocol.Request, reply []byte) []byte {
	reply = append(reply, DataOutMessage...)
	return append(reply, 0)
}

func handleSpeedQuery(m *Motor, _ protocol.Request, reply []byte) []byte {
	digits := EncodeFixedWidth3(m.Speed())
	return append(reply, digits[:]...)
}
