package main

/*
#include <stdlib.h>

typedef int (*extensionCallback)(char const *name, char const *function, char const *data);

int invokeCallback(extensionCallback fnc, char const *name, char const *function, char const *data) {
	return fnc(name, function, data);
}
*/
import "C"

import (
	"unsafe"

	"github.com/wytcherly/foreman/pkg/hostapi"
)

func registerCallback(fnc C.extensionCallback) {
	if fnc == nil {
		hostapi.Default.RegisterCallback(nil)
		return
	}
	hostapi.Default.RegisterCallback(func(name, function, data string) int {
		cName := C.CString(name)
		defer C.free(unsafe.Pointer(cName))
		cFunction := C.CString(function)
		defer C.free(unsafe.Pointer(cFunction))
		cData := C.CString(data)
		defer C.free(unsafe.Pointer(cData))
		return int(C.invokeCallback(fnc, cName, cFunction, cData))
	})
}
