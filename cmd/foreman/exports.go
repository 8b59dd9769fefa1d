package main

/*
#include <stdlib.h>
#include <string.h>

typedef int (*extensionCallback)(char const *name, char const *function, char const *data);
*/
import "C"

import (
	"unsafe"

	"github.com/wytcherly/foreman/pkg/hostapi"
)

// called by the host to get the version of the extension
//
//export RVExtensionVersion
func RVExtensionVersion(output *C.char, outputsize C.size_t) {
	reply(hostapi.Default.Version(), output, outputsize)
}

// called by the host as: "foreman" callExtension "command|arg|arg"
//
//export RVExtension
func RVExtension(output *C.char, outputsize C.size_t, input *C.char) {
	reply(hostapi.Default.HandleCommand(C.GoString(input)), output, outputsize)
}

// called by the host as: "foreman" callExtension ["command", [args]]
//
//export RVExtensionArgs
func RVExtensionArgs(output *C.char, outputsize C.size_t, input *C.char, argv **C.char, argc C.int) {
	command := C.GoString(input)
	reply(hostapi.Default.HandleArgs(command, goArgs(argv, argc)), output, outputsize)
}

// called by the host once with the function used for async results
//
//export RVExtensionRegisterCallback
func RVExtensionRegisterCallback(fnc C.extensionCallback) {
	registerCallback(fnc)
}

func goArgs(argv **C.char, argc C.int) []string {
	if argc <= 0 || argv == nil {
		return nil
	}
	ptrs := unsafe.Slice(argv, int(argc))
	args := make([]string, len(ptrs))
	for i, p := range ptrs {
		args[i] = C.GoString(p)
	}
	return args
}

// reply copies response into the host's output buffer, truncating to fit.
func reply(response string, output *C.char, outputsize C.size_t) {
	if outputsize == 0 {
		return
	}
	result := C.CString(response)
	defer C.free(unsafe.Pointer(result))
	size := C.strlen(result) + 1
	if size > outputsize {
		size = outputsize
	}
	C.memmove(unsafe.Pointer(output), unsafe.Pointer(result), size)
	// a truncated copy still has to be terminated
	*(*C.char)(unsafe.Add(unsafe.Pointer(output), int(outputsize)-1)) = 0
}
