package actor_test

import (
	"context"
	"fmt"
	"time"

	"github.com/roasbeef/holon/internal/actor"
)

type BasicGreetingMsg struct {
	actor.BaseMessage
	Name string
}

func (m BasicGreetingMsg) MessageType() string { return "BasicGreetingMsg" }

type BasicGreetingResponse struct {
	Greeting string
}

// ExampleActor demonstrates creating a single actor, calling it, and
// unregistering it from service discovery.
func ExampleActor() {
	system := actor.NewActorSystem()
	defer system.Shutdown(context.Background())

	greeterKey := actor.NewServiceKey[BasicGreetingMsg, BasicGreetingResponse](
		"basic-greeter",
	)

	actorID := "my-greeter"
	greeterBehavior := actor.NewFunctionBehavior(
		func(ctx context.Context,
			msg BasicGreetingMsg) (BasicGreetingResponse, error) {

			return BasicGreetingResponse{
				Greeting: "Hello, " + msg.Name + " from " + actorID,
			}, nil
		},
	)

	greeterRef := greeterKey.Spawn(system, actorID, greeterBehavior)
	fmt.Printf("Actor %s spawned.\n", greeterRef.ID())

	askCtx, askCancel := context.WithTimeout(
		context.Background(), 1*time.Second,
	)
	defer askCancel()

	response, err := greeterRef.Call(askCtx, BasicGreetingMsg{Name: "World"}, 0)
	if err != nil {
		fmt.Printf("Error awaiting response: %v\n", err)
	} else {
		fmt.Printf("Received: %s\n", response.Greeting)
	}

	unregistered := greeterKey.Unregister(system, greeterRef)
	if unregistered {
		fmt.Printf("Actor %s unregistered from receptionist.\n",
			greeterRef.ID())
	} else {
		fmt.Printf("Failed to unregister actor %s.\n", greeterRef.ID())
	}

	refsAfterUnregister := actor.FindInReceptionist(
		system.Receptionist(), greeterKey,
	)
	fmt.Printf("Actors for key '%s' after unregister: %d\n",
		"basic-greeter", len(refsAfterUnregister))

	// Output:
	// Actor my-greeter spawned.
	// Received: Hello, World from my-greeter
	// Actor my-greeter unregistered from receptionist.
	// Actors for key 'basic-greeter' after unregister: 0
}
