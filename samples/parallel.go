package samples

import (
	"fmt"
	"strings"

	"github.com/microsoft/durablefunctions-go/task"
)

func init() {
	register(Sample{
		Name:         "parallel",
		Description:  "updates a list of devices in parallel and reports the success rate",
		Orchestrator: "UpdateDevicesOrchestrator",
		Input:        10,
	})
}

func addParallel(r *task.TaskRegistry) error {
	if err := r.AddOrchestrator(UpdateDevicesOrchestrator); err != nil {
		return err
	}
	if err := r.AddActivity(GetDevicesToUpdate); err != nil {
		return err
	}
	return r.AddActivity(UpdateDevice)
}

// UpdateDevicesOrchestrator fans out one UpdateDevice call per device and fans back in with WhenAll.
func UpdateDevicesOrchestrator(ctx *task.OrchestrationContext) (any, error) {
	var count int
	if err := ctx.GetInput(&count); err != nil {
		return nil, err
	}
	var devices []string
	if err := ctx.CallActivity(GetDevicesToUpdate, task.WithActivityInput(count)).Await(&devices); err != nil {
		return nil, err
	}

	tasks := make([]task.Task, 0, len(devices))
	for _, id := range devices {
		tasks = append(tasks, ctx.CallActivity(UpdateDevice, task.WithActivityInput(id)))
	}
	if err := ctx.WhenAll(tasks...).Await(nil); err != nil {
		return nil, err
	}

	successCount := 0
	for _, t := range tasks {
		var succeeded bool
		if err := t.Await(&succeeded); err == nil && succeeded {
			successCount++
		}
	}
	return float32(successCount) / float32(len(devices)), nil
}

// GetDevicesToUpdate returns the IDs of the devices to update.
func GetDevicesToUpdate(ctx task.ActivityContext) (any, error) {
	var count int
	if err := ctx.GetInput(&count); err != nil {
		return nil, err
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("device-%02d", i)
	}
	return ids, nil
}

// UpdateDevice pretends to update a device. Devices whose number ends with 3, 6 or 9 fail to update.
func UpdateDevice(ctx task.ActivityContext) (any, error) {
	var id string
	if err := ctx.GetInput(&id); err != nil {
		return nil, err
	}
	return !strings.ContainsAny(id[len(id)-1:], "369"), nil
}
