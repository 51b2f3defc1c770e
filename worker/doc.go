// Package worker supervises long-running workers.
//
// A worker is described by a Class: default settings plus a constructor that builds
// a fresh Worker for every attempt. A Supervisor drives one worker through
//
//	created -> setup -> running -> (retrying -> setup ...) -> tearing_down -> stopped
//
// calling Handle in a loop, one unit of work per call, and yielding between calls.
// When Setup or Handle fails (panics included) the attempt is torn down and, while
// attempts remain and the error was not wrapped with Terminal, the supervisor sleeps
// Spec.SleepTime and builds the next attempt. Only the final failure reaches the
// Reporter.
//
// Stopping is cooperative. The Shutdown flag is shared by a cohort; it is checked
// between Handle calls and interrupts the idle and retry sleeps, never an in-flight
// Handle. Workers reach the flag through the context they are given:
//
//	func (w *myWorker) Handle(ctx context.Context) error {
//	    msg, ok := w.next()
//	    if !ok {
//	        worker.Wait(ctx, w.spec.SleepTime)
//	        return nil
//	    }
//	    if msg.isPoison() {
//	        worker.RequestShutdown(ctx)
//	    }
//	    return w.process(ctx, msg)
//	}
//
// A Registry collects classes at startup and a Launcher runs them:
//
//	registry := worker.NewRegistry()
//	_ = registry.Register("orders", ordersClass, 2)
//
//	launcher := worker.NewLauncher(registry, worker.WithLogger(log))
//	err := launcher.Run(ctx)            // every registered worker
//	err = launcher.Run(ctx, "orders")   // a subset
//
// Run freezes the registry and returns the joined *FailedError values of workers that
// stopped in error, so the process can exit non-zero.
package worker
