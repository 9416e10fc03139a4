package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Server is the interface the generated-style handler functions below
// dispatch to; Facade satisfies it.
type Server interface {
	CreateContainer(context.Context, *CreateContainerRequest) (*Container, error)
	ListContainer(context.Context, *ListContainerRequest) (*ListContainerResponse, error)
	GetContainer(context.Context, *GetContainerRequest) (*Container, error)
	DeleteContainer(context.Context, *DeleteContainerRequest) (*DeleteContainerResponse, error)
	SaveContainer(context.Context, *SaveContainerRequest) (*SaveContainerResponse, error)
}

// RegisterContainerMakerAPIServer registers srv with s under the service
// name a protoc-gen-go-grpc codegen pass would have produced from a
// "ContainerMakerAPI" service definition with these five unary RPCs.
func RegisterContainerMakerAPIServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&_ContainerMakerAPI_serviceDesc, srv)
}

func _ContainerMakerAPI_CreateContainer_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateContainerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).CreateContainer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/containermaker.ContainerMakerAPI/createContainer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).CreateContainer(ctx, req.(*CreateContainerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ContainerMakerAPI_ListContainer_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListContainerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).ListContainer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/containermaker.ContainerMakerAPI/listContainer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).ListContainer(ctx, req.(*ListContainerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ContainerMakerAPI_GetContainer_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetContainerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).GetContainer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/containermaker.ContainerMakerAPI/getContainer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).GetContainer(ctx, req.(*GetContainerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ContainerMakerAPI_DeleteContainer_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteContainerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).DeleteContainer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/containermaker.ContainerMakerAPI/deleteContainer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).DeleteContainer(ctx, req.(*DeleteContainerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _ContainerMakerAPI_SaveContainer_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SaveContainerRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).SaveContainer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/containermaker.ContainerMakerAPI/saveContainer"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).SaveContainer(ctx, req.(*SaveContainerRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var _ContainerMakerAPI_serviceDesc = grpc.ServiceDesc{
	ServiceName: "containermaker.ContainerMakerAPI",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "createContainer", Handler: _ContainerMakerAPI_CreateContainer_Handler},
		{MethodName: "listContainer", Handler: _ContainerMakerAPI_ListContainer_Handler},
		{MethodName: "getContainer", Handler: _ContainerMakerAPI_GetContainer_Handler},
		{MethodName: "deleteContainer", Handler: _ContainerMakerAPI_DeleteContainer_Handler},
		{MethodName: "saveContainer", Handler: _ContainerMakerAPI_SaveContainer_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "containermaker.proto",
}
