package programs

import (
	"github.com/roach88/ckpt/internal/engine"
	"github.com/roach88/ckpt/internal/ir"
)

// FieldLog is the recorder's list field.
const FieldLog = "log"

// Recorder returns the recorder program.
func Recorder() Program {
	return Program{
		Name:        "recorder",
		Description: "appends its argument twice around a local suspension",
		Methods: func() engine.Methods {
			return engine.Methods{
				"append_twice": engine.UpdateMethod(appendTwice),
				"entries":      engine.QueryMethod(entries),
			}
		},
	}
}

func appendTwice(c *engine.Call, args ir.IRValue) (ir.IRValue, error) {
	appendArg(c, args)
	if _, err := c.Await(noop); err != nil {
		return nil, err
	}
	appendArg(c, args)
	return nil, nil
}

func entries(c *engine.Call, _ ir.IRValue) (ir.IRValue, error) {
	log, _ := c.Get(FieldLog).(ir.IRArray)
	if log == nil {
		log = ir.IRArray{}
	}
	return log, nil
}

func appendArg(c *engine.Call, v ir.IRValue) {
	log, _ := c.Get(FieldLog).(ir.IRArray)
	if v == nil {
		v = ir.IRNull{}
	}
	c.Set(FieldLog, append(log, v))
}
