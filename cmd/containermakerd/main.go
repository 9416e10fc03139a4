// Command containermakerd runs the container-maker gRPC service.
package main

func main() {
	Execute()
}
