package irq

// exceptionsWithCode lists the CPU exception vectors whose entry stub
// pushes an error code onto the stack before trapping into the kernel, per
// the amd64 architecture manual.
var exceptionsWithCode = [...]uint8{8, 10, 11, 12, 13, 14, 17}

var (
	handleExceptionFn         = HandleException
	handleExceptionWithCodeFn = HandleExceptionWithCode
)

func hasErrorCode(vector uint8) bool {
	for _, v := range exceptionsWithCode {
		if v == vector {
			return true
		}
	}
	return false
}

// Init wires every IDT vector to Dispatch via the architecture's low-level
// gate-installation primitives. It must run once, early in boot, before any
// call to RegisterInterrupt/RegisterException.
func Init() {
	for v := 0; v <= MaxIntVec; v++ {
		vector := uint8(v)
		if hasErrorCode(vector) {
			handleExceptionWithCodeFn(ExceptionNum(vector), dispatchTrampolineWithCode(vector))
			continue
		}
		handleExceptionFn(ExceptionNum(vector), dispatchTrampoline(vector))
	}
}

func dispatchTrampoline(vector uint8) ExceptionHandler {
	return func(frame *Frame, regs *Regs) {
		Dispatch(vector, 0, frame, regs)
	}
}

func dispatchTrampolineWithCode(vector uint8) ExceptionHandlerWithCode {
	return func(errorCode uint64, frame *Frame, regs *Regs) {
		Dispatch(vector, errorCode, frame, regs)
	}
}
