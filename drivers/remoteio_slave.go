package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

const remoteIoSlaveDriverName = "remoteio_slave"
const httpTimeoutsMs = 3000

// RemoteIoSlave serves this host's virtual pins over HTTP for a RemoteIO
// master: the master polls /config and /state, sets outputs via /set, and
// anything on the network may drive an input level via /push. Pushed levels
// are plain pin states; edge classification stays with the polling elements.
type RemoteIoSlave struct {
	Token    string
	HttpAddr string

	inputs  []*SlaveInput
	outputs []*SlaveOutput
	ready   bool
	server  *http.Server

	serverErr chan error
}

type SlaveInput struct {
	pin   uint16
	state bool
}

func (sin *SlaveInput) GetState() (bool, error) {
	return sin.state, nil
}

type SlaveOutput struct {
	pin   uint16
	state bool
}

func (sout *SlaveOutput) GetState() (bool, error) {
	return sout.state, nil
}

func (sout *SlaveOutput) Set(newState bool) error {
	sout.state = newState
	return nil
}

func (ris *RemoteIoSlave) NameId() string {
	return remoteIoSlaveDriverName
}

func (ris *RemoteIoSlave) IsReady() bool {
	return ris.ready
}

func (ris *RemoteIoSlave) PinCount() uint16 {
	return remoteioPinCount
}

func (ris *RemoteIoSlave) Close() error {
	ris.ready = false
	if ris.server == nil {
		return nil
	}
	return ris.server.Close()
}

func (ris *RemoteIoSlave) Setup(ctx context.Context, inputs []uint16, outputs []uint16) error {
	for _, inPin := range inputs {
		ris.inputs = append(ris.inputs, &SlaveInput{pin: inPin})
	}

	for _, outPin := range outputs {
		ris.outputs = append(ris.outputs, &SlaveOutput{pin: outPin})
	}

	httpTimeout := httpTimeoutsMs * time.Millisecond

	ris.server = &http.Server{
		Addr:              ris.HttpAddr,
		Handler:           ris.router(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	// buffered, so the server goroutine can report and exit even when
	// nobody is receiving after Close
	ris.serverErr = make(chan error, 1)

	ris.ready = true
	go func() {
		err := ris.server.ListenAndServe()
		ris.ready = false
		ris.serverErr <- err
	}()

	return nil
}

func (ris *RemoteIoSlave) router() *httprouter.Router {
	handler := httprouter.New()
	handler.GET("/config", ris.handleConfig)
	handler.GET("/state", ris.handleState)
	handler.GET("/set/:pin_no/state/:state", ris.handleSet)
	handler.GET("/push/:pin_no/state/:state/token/:token", ris.handlePush)
	return handler
}

func (ris *RemoteIoSlave) checkToken(w http.ResponseWriter, r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("remoteio-token"), ris.Token) {
		http.Error(w, "token mismatch", http.StatusUnauthorized)
		return false
	}
	return true
}

func (ris *RemoteIoSlave) handleConfig(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !ris.checkToken(w, r) {
		return
	}

	config := remoteConfig{}
	config.Inputs, config.Outputs = ris.GetAllIo()

	w.Header().Add("Content-Type", "application/json")
	json.NewEncoder(w).Encode(config)
}

func (ris *RemoteIoSlave) handleState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !ris.checkToken(w, r) {
		return
	}

	state := remoteState{}
	for _, input := range ris.inputs {
		state.Inputs = append(state.Inputs, remotePinState{Pin: input.pin, State: input.state})
	}
	for _, output := range ris.outputs {
		state.Outputs = append(state.Outputs, remotePinState{Pin: output.pin, State: output.state})
	}

	w.Header().Add("Content-Type", "application/json")
	json.NewEncoder(w).Encode(state)
}

func parsePinState(p httprouter.Params) (pin uint16, state bool, err error) {
	pinNo, err := strconv.Atoi(p.ByName("pin_no"))
	if err != nil || pinNo < 0 || pinNo >= int(remoteioPinCount) {
		err = fmt.Errorf("bad pin number: %s", p.ByName("pin_no"))
		return
	}
	pin = uint16(pinNo)

	switch p.ByName("state") {
	case "on":
		state = true
	case "off":
		state = false
	default:
		err = fmt.Errorf("bad pin state: %s", p.ByName("state"))
	}
	return
}

func (ris *RemoteIoSlave) handleSet(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !ris.checkToken(w, r) {
		return
	}

	pin, state, err := parsePinState(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, output := range ris.outputs {
		if output.pin == pin {
			output.Set(state)
			return
		}
	}

	http.Error(w, "pin not found", http.StatusNotFound)
}

func (ris *RemoteIoSlave) handlePush(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if !strings.EqualFold(p.ByName("token"), ris.Token) {
		http.Error(w, "token mismatch", http.StatusUnauthorized)
		return
	}

	pin, state, err := parsePinState(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, input := range ris.inputs {
		if input.pin == pin {
			input.state = state
			return
		}
	}

	http.Error(w, "pin not found", http.StatusNotFound)
}

func (ris *RemoteIoSlave) GetInput(pin uint16) (DigitalInput, error) {
	for _, in := range ris.inputs {
		if in.pin == pin {
			return in, nil
		}
	}

	return nil, fmt.Errorf("remoteio slave input no: %d not found", pin)
}

func (ris *RemoteIoSlave) GetOutput(pin uint16) (DigitalOutput, error) {
	for _, out := range ris.outputs {
		if out.pin == pin {
			return out, nil
		}
	}

	return nil, fmt.Errorf("remoteio slave output no: %d not found", pin)
}

func (ris *RemoteIoSlave) GetAllIo() (inputs []uint16, outputs []uint16) {
	for _, input := range ris.inputs {
		inputs = append(inputs, input.pin)
	}

	for _, output := range ris.outputs {
		outputs = append(outputs, output.pin)
	}

	return
}
