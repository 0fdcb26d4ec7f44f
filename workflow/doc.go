// Package workflow runs a set of named tasks in dependency order.
//
// # Overview
//
// A Workflow holds Tasks. Each task names an Action, declares parameters and
// lists the tasks it depends on. Run validates the dependency graph, then
// dispatches every task whose dependencies have succeeded on its own
// goroutine, so independent tasks run concurrently.
//
// # Parameters
//
// A parameter is either a literal, passed to the action unchanged, or a
// reference to the output of another task:
//
//	workflow.Task{
//	    Name:      "transform",
//	    Action:    upper,
//	    DependsOn: []string{"extract"},
//	    Params:    map[string]workflow.Param{"input": workflow.Ref("extract")},
//	}
//
// A reference must name a task in DependsOn. This is checked before anything
// runs, and the value is looked up right before the task is dispatched.
//
// # State Progression
//
//	Pending -> Ready -> Running -> (Succeeded|Failed)
//	Running -> Retrying -> Running
//	Pending|Ready -> Skipped
//
// A task whose dependency failed or was skipped is itself Skipped without
// invoking its action. Under FailFast (the default) the first failure also
// skips every task that has not started; tasks already running finish. Under
// ContinueOnError independent branches keep going.
//
// # Errors
//
// Structural problems (UnknownDependencyError, CycleDetectedError,
// ParameterResolutionError) are returned by Run before any action is invoked.
// Action failures never escape Run: they are recorded as TaskExecutionErrors in
// the WorkflowResult, whose Status is Completed, Failed or Aborted.
//
// # Usage Example
//
//	wf := workflow.New("etl", workflow.WithLogger(logger))
//	err := wf.AddTask(
//	    workflow.Task{Name: "extract", Action: extract},
//	    workflow.Task{
//	        Name:      "load",
//	        Action:    load,
//	        DependsOn: []string{"extract"},
//	        Params:    map[string]workflow.Param{"rows": workflow.Ref("extract")},
//	        Retry:     workflow.RetryPolicy{Count: 2, Delay: time.Second},
//	    },
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := wf.Run(ctx)
//	if err != nil {
//	    log.Fatal(err) // invalid graph
//	}
//	if out, ok := result.Output("load"); ok {
//	    fmt.Println(out)
//	}
//
// # Thread Safety
//
// All Workflow methods are safe for concurrent use. Concurrent calls to Run
// share nothing but the task definitions.
package workflow
