package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const remoteioDriverName = "remoteio"
const remoteioPinCount = 64
const requiredRemoteIoStateAge = 5 * time.Second
const remoteIoNetClientTimeout = 2 * time.Second

// RemoteIO exposes pins living on another host, served by a RemoteIoSlave.
// It is a buffered driver: Refresh pulls the whole remote state once per
// poll cycle and reads observe the cached copy, with a freshness error when
// the cache goes stale.
type RemoteIO struct {
	Host       string
	Token      string
	DriverName string

	inputs  []*RemoteInput
	outputs []*RemoteOutput
	isReady bool
}

type RemoteInput struct {
	pinNo uint16

	state    bool
	lastSync time.Time
}

func (rin *RemoteInput) GetState() (state bool, err error) {
	state = rin.state
	if time.Since(rin.lastSync) > requiredRemoteIoStateAge {
		err = errors.Errorf("RemoteInput state too old: %s", time.Since(rin.lastSync).String())
	}
	return
}

type RemoteOutput struct {
	pinNo uint16

	state    bool
	driver   *RemoteIO
	lastSync time.Time
}

func (rout *RemoteOutput) GetState() (state bool, err error) {
	state = rout.state
	if time.Since(rout.lastSync) > requiredRemoteIoStateAge {
		err = errors.Errorf("RemoteOutput state too old: %s", time.Since(rout.lastSync).String())
	}
	return
}

func (rout *RemoteOutput) Set(state bool) (err error) {
	strState := "off"
	if state {
		strState = "on"
	}

	response, err := rout.driver.getRemoteResponse(fmt.Sprintf("set/%d/state/%s", rout.pinNo, strState))
	if err != nil {
		return errors.Wrap(err, "RemoteOutput Set request failed")
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return errors.Errorf("RemoteOutput Set failed (response code: %d)", response.StatusCode)
	}

	rout.state = state
	rout.lastSync = time.Now()
	return
}

type remotePinState struct {
	Pin   uint16
	State bool
}

type remoteState struct {
	Inputs  []remotePinState
	Outputs []remotePinState
}

type remoteConfig struct {
	Inputs  []uint16
	Outputs []uint16
}

func (rio *RemoteIO) getRemoteResponse(path string) (response *http.Response, err error) {
	var netClient = &http.Client{
		Timeout: remoteIoNetClientTimeout,
	}

	reqUrl, err := url.Parse(rio.Host)
	if err != nil {
		err = errors.Wrap(err, "RemoteIO failed to parse Host url")
		return
	}
	reqUrl = reqUrl.JoinPath(path)
	req, err := http.NewRequest("GET", reqUrl.String(), nil)
	if err != nil {
		err = errors.Wrap(err, "RemoteIO error preparing request")
		return
	}
	req.Header.Add("remoteio-token", rio.Token)
	response, err = netClient.Do(req)
	return
}

func (rio *RemoteIO) Setup(ctx context.Context, inputs []uint16, outputs []uint16) error {
	response, err := rio.getRemoteResponse("config")
	if err != nil {
		return errors.Wrap(err, "RemoteIO Setup: preparing net client error")
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return errors.Errorf("RemoteIO Setup failed (response code: %d)", response.StatusCode)
	}

	config := &remoteConfig{}

	err = json.NewDecoder(response.Body).Decode(config)
	if err != nil {
		return errors.Wrap(err, "RemoteIO Setup: decoding response failed")
	}

	if len(config.Inputs) == 0 && len(config.Outputs) == 0 {
		return errors.Errorf("RemoteIO Setup: received response with 0 inputs and 0 outputs - not ready")
	}

	for _, input := range inputs {
		found := false
		for _, inputAvailable := range config.Inputs {
			if inputAvailable == input {
				found = true
				rio.inputs = append(rio.inputs, &RemoteInput{pinNo: input})
			}
		}
		if !found {
			return errors.Errorf("RemoteIO Setup: input %d not found on remote!", input)
		}
	}
	for _, output := range outputs {
		found := false
		for _, outputAvailable := range config.Outputs {
			if outputAvailable == output {
				found = true
				rio.outputs = append(rio.outputs, &RemoteOutput{pinNo: output, driver: rio})
			}
		}
		if !found {
			return errors.Errorf("RemoteIO Setup: output %d not found on remote!", output)
		}
	}

	rio.isReady = true
	return nil
}

// Refresh pulls the remote pin states into the local cache.
func (rio *RemoteIO) Refresh() error {
	response, err := rio.getRemoteResponse("state")
	if err != nil {
		return errors.Wrap(err, "RemoteIO Refresh request failed")
	}
	defer response.Body.Close()

	if response.StatusCode >= 300 {
		return errors.Errorf("RemoteIO Refresh failed (response code: %d)", response.StatusCode)
	}

	state := &remoteState{}
	err = json.NewDecoder(response.Body).Decode(state)
	if err != nil {
		return errors.Wrap(err, "RemoteIO Refresh: decoding response failed")
	}

	now := time.Now()
	for _, remote := range state.Inputs {
		for _, input := range rio.inputs {
			if input.pinNo == remote.Pin {
				input.state = remote.State
				input.lastSync = now
			}
		}
	}
	for _, remote := range state.Outputs {
		for _, output := range rio.outputs {
			if output.pinNo == remote.Pin {
				output.state = remote.State
				output.lastSync = now
			}
		}
	}

	return nil
}

func (rio *RemoteIO) Close() (err error) {
	rio.isReady = false
	return
}

func (rio *RemoteIO) NameId() string {
	if len(rio.DriverName) > 0 {
		return rio.DriverName
	}
	return remoteioDriverName
}

func (rio *RemoteIO) IsReady() bool {
	return rio.isReady
}

func (rio *RemoteIO) PinCount() uint16 {
	return remoteioPinCount
}

func (rio *RemoteIO) GetInput(pin uint16) (DigitalInput, error) {
	for _, input := range rio.inputs {
		if input.pinNo == pin {
			return input, nil
		}
	}
	return nil, errors.Errorf("RemoteIO GetInput input %d not found", pin)
}

func (rio *RemoteIO) GetOutput(pin uint16) (DigitalOutput, error) {
	for _, output := range rio.outputs {
		if output.pinNo == pin {
			return output, nil
		}
	}
	return nil, errors.Errorf("RemoteIO GetOutput output %d not found", pin)
}

func (rio *RemoteIO) GetAllIo() (inputs []uint16, outputs []uint16) {
	for _, input := range rio.inputs {
		inputs = append(inputs, input.pinNo)
	}
	for _, output := range rio.outputs {
		outputs = append(outputs, output.pinNo)
	}

	return
}
