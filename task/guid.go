package task

import (
	"fmt"

	"github.com/google/uuid"
)

const guidTimeLayout = "2006-01-02T15:04:05.000000Z"

// guidNamespace is the namespace of deterministic orchestration GUIDs. It is fixed so that every
// replay, in any process, produces the same values.
var guidNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("9e952958-5e33-4daf-827f-2fa12937b875"))

// NewGUID returns a name-based (version 5) UUID derived from the instance ID, the current
// orchestration time and a counter local to this replay. The sequence is identical on every
// replay of the same history.
func (ctx *OrchestrationContext) NewGUID() uuid.UUID {
	name := fmt.Sprintf("%s_%s_%d", ctx.ID, ctx.CurrentTimeUtc.UTC().Format(guidTimeLayout), ctx.guidCounter)
	ctx.guidCounter++
	return uuid.NewSHA1(guidNamespace, []byte(name))
}
